// Package mail sends transactional email through SendGrid: one-time login
// codes and match notifications for linked sightings.
package mail

import (
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config holds settings for composing and sending emails.
type Config struct {
	FromAddress string
	FromName    string
	// SandboxMode when true validates requests with SendGrid without
	// delivering anything.
	SandboxMode bool
	APIKey      string
}

// Sender is the interface for dispatching composed emails. It exists so
// tests can capture messages instead of hitting the SendGrid API.
type Sender interface {
	Send(email *sgmail.SGMailV3) (*SendResult, error)
}

// SendResult contains the outcome of a send.
type SendResult struct {
	StatusCode int
	MessageID  string
}

// SendGridSender sends emails via the SendGrid API.
type SendGridSender struct {
	APIKey string
}

// Send dispatches an email through the SendGrid API.
func (s *SendGridSender) Send(email *sgmail.SGMailV3) (*SendResult, error) {
	client := sendgrid.NewSendClient(s.APIKey)
	resp, err := client.Send(email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	return &SendResult{StatusCode: resp.StatusCode, MessageID: messageID}, nil
}

// Mailer composes and sends the application's emails.
type Mailer struct {
	cfg    Config
	sender Sender
}

// New creates a Mailer. When sender is nil a real SendGrid sender using
// cfg.APIKey is used.
func New(cfg Config, sender Sender) *Mailer {
	if sender == nil {
		sender = &SendGridSender{APIKey: cfg.APIKey}
	}
	return &Mailer{cfg: cfg, sender: sender}
}

// SendLoginCode emails a one-time sign-in code.
func (m *Mailer) SendLoginCode(to, code string) error {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "Your one-time sign-in code is: %s\n\n", code)
	b.WriteString("The code expires in 10 minutes. If you didn't request it, you can ignore this email.\n\n")
	fmt.Fprintf(&b, "%s\n", m.cfg.FromName)

	return m.send(to, "", "Your sign-in code", b.String())
}

// SendMatchNotification tells a pet owner that a new sighting was linked to
// their lost-pet report.
func (m *Mailer) SendMatchNotification(to, ownerName, petName, sightingLocation string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", ownerName)
	fmt.Fprintf(&b, "Someone reported a sighting that may match %s.\n\n", petName)
	if sightingLocation != "" {
		fmt.Fprintf(&b, "Reported location: %s\n\n", sightingLocation)
	}
	b.WriteString("Open the app to review the sighting and contact the reporter.\n\n")
	fmt.Fprintf(&b, "%s\n", m.cfg.FromName)

	subject := fmt.Sprintf("Possible sighting of %s", petName)
	return m.send(to, ownerName, subject, b.String())
}

func (m *Mailer) send(toAddr, toName, subject, body string) error {
	from := sgmail.NewEmail(m.cfg.FromName, m.cfg.FromAddress)
	to := sgmail.NewEmail(toName, toAddr)
	message := sgmail.NewSingleEmail(from, subject, to, body, "")

	if m.cfg.SandboxMode {
		settings := sgmail.NewMailSettings()
		settings.SetSandboxMode(sgmail.NewSetting(true))
		message.SetMailSettings(settings)
	}

	_, err := m.sender.Send(message)
	return err
}
