// Package chat drives sighting-report collection through free-text turns
// instead of discrete wizard steps. Each user message is sent to the model
// together with the partial draft; the model answers with a reply message
// and a list of field updates, which are applied to the same draft store
// the structured wizard uses.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/genai"
	"github.com/pawfound/sighting-wizard/internal/model"
)

const (
	defaultModel = "gemini-2.5-flash"
	turnTimeout  = 30 * time.Second

	// Sentinel field names the model uses for control signals rather than
	// draft attributes.
	sentinelComplete = "complete"
	sentinelOffense  = "offenseCounter"

	// An offense count above this ends the conversation.
	offenseLimit = 2
)

const (
	rephraseMessage = "Sorry, I didn't catch that. Could you rephrase?"
	flaggedMessage  = "This conversation has been ended."
)

// ErrNotFound is returned for an unknown conversation ID.
var ErrNotFound = errors.New("conversation not found")

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one message in a conversation transcript.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// FieldUpdate is one draft mutation extracted by the model from a user turn.
type FieldUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type modelReply struct {
	Message string        `json:"message"`
	Data    []FieldUpdate `json:"data"`
}

// Submitter persists a completed draft, exactly as the structured wizard
// hands off to the submission pipeline.
type Submitter interface {
	Submit(ctx context.Context, d draft.Draft, reporterID string) (string, error)
}

// LogStore records finished conversation transcripts.
type LogStore interface {
	CreateConversationLog(ctx context.Context, l *model.ConversationLog) error
}

// Conversation is one user's chat-driven report session.
type Conversation struct {
	ID     string
	UserID string

	mu         sync.Mutex
	turns      []Turn
	drafts     *draft.Store
	offense    int
	flagged    bool
	done       bool
	recordID   string
	lastActive time.Time
}

// TurnResult is what the controller returns for one processed user turn.
type TurnResult struct {
	Message  string
	Done     bool
	Flagged  bool
	RecordID string
}

// Controller owns all live conversations and the collaborators they need.
type Controller struct {
	client    genai.Client
	modelName string
	submitter Submitter
	logs      LogStore
	logger    *slog.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewController creates a chat controller. modelName falls back to the
// default Gemini model when empty.
func NewController(client genai.Client, modelName string, submitter Submitter, logs LogStore, logger *slog.Logger) *Controller {
	if modelName == "" {
		modelName = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client:        client,
		modelName:     modelName,
		submitter:     submitter,
		logs:          logs,
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}
}

// Start opens a new conversation for the given user.
func (c *Controller) Start(userID string) *Conversation {
	conv := &Conversation{
		ID:         uuid.New().String(),
		UserID:     userID,
		drafts:     draft.NewStore(uuid.New().String()),
		lastActive: time.Now(),
	}
	c.mu.Lock()
	c.conversations[conv.ID] = conv
	c.mu.Unlock()
	return conv
}

// Get returns the conversation with the given ID, if it exists.
func (c *Controller) Get(id string) (*Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	return conv, ok
}

// Sweep removes conversations idle longer than maxIdle and returns how many
// were dropped.
func (c *Controller) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for id, conv := range c.conversations {
		conv.mu.Lock()
		stale := conv.lastActive.Before(cutoff)
		conv.mu.Unlock()
		if stale {
			delete(c.conversations, id)
			n++
		}
	}
	return n
}

// Turns returns a copy of the conversation transcript.
func (conv *Conversation) Turns() []Turn {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]Turn, len(conv.turns))
	copy(out, conv.turns)
	return out
}

// Draft returns a copy of the conversation's current draft.
func (conv *Conversation) Draft() draft.Draft {
	return conv.drafts.Get()
}

// Turn processes one user message: it asks the model for field updates,
// applies them, and returns the bot's reply. A malformed model response
// keeps the conversation alive with a rephrase prompt. The offense counter
// only ever moves up; crossing the limit flags the conversation and ends it
// without submitting the draft.
func (c *Controller) Turn(ctx context.Context, convID, text string) (TurnResult, error) {
	conv, ok := c.Get(convID)
	if !ok {
		return TurnResult{}, ErrNotFound
	}

	conv.mu.Lock()
	if conv.done {
		conv.mu.Unlock()
		return TurnResult{Message: flaggedMessage, Done: true, Flagged: conv.flagged, RecordID: conv.recordID}, nil
	}
	conv.lastActive = time.Now()
	conv.turns = append(conv.turns, Turn{Speaker: SpeakerUser, Text: text, At: time.Now()})
	d := conv.drafts.Get()
	conv.mu.Unlock()

	reply, ok := c.askModel(ctx, d, text)
	if !ok {
		return c.finishTurn(ctx, conv, TurnResult{Message: rephraseMessage})
	}

	complete := c.applyUpdates(conv, reply.Data)

	conv.mu.Lock()
	flagged := conv.flagged
	conv.mu.Unlock()

	switch {
	case flagged:
		c.endConversation(ctx, conv, "")
		return c.finishTurn(ctx, conv, TurnResult{Message: flaggedMessage, Done: true, Flagged: true})
	case complete:
		id, err := c.submitter.Submit(ctx, conv.drafts.Get(), conv.UserID)
		if err != nil {
			c.logger.Error("submit chat draft", "conversation_id", conv.ID, "error", err)
			return c.finishTurn(ctx, conv, TurnResult{
				Message: "Something went wrong saving your report. Please try again.",
			})
		}
		c.endConversation(ctx, conv, id)
		return c.finishTurn(ctx, conv, TurnResult{Message: reply.Message, Done: true, RecordID: id})
	default:
		return c.finishTurn(ctx, conv, TurnResult{Message: reply.Message})
	}
}

// askModel sends the turn to the model and parses the structured reply.
// ok is false for transport failures and unparseable payloads.
func (c *Controller) askModel(ctx context.Context, d draft.Draft, text string) (modelReply, bool) {
	if c.client == nil {
		return modelReply{}, false
	}
	tctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	temp := float32(0.2)
	raw, err := c.client.GenerateContent(tctx, c.modelName, []genai.Part{
		{Text: buildTurnPrompt(d, text)},
	}, &genai.GenerateConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		c.logger.Warn("chat model call", "error", err)
		return modelReply{}, false
	}

	raw = stripMarkdownFences(raw)
	if raw == "" {
		return modelReply{}, false
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		c.logger.Warn("parse chat reply", "error", err)
		return modelReply{}, false
	}
	if reply.Message == "" {
		return modelReply{}, false
	}
	return reply, true
}

// applyUpdates writes the model's field updates into the draft, handling
// the two sentinel fields. It reports whether the model declared the
// report complete.
func (c *Controller) applyUpdates(conv *Conversation, updates []FieldUpdate) bool {
	var complete bool
	for _, u := range updates {
		switch u.Field {
		case sentinelComplete:
			if v, err := strconv.ParseBool(u.Value); err == nil && v {
				complete = true
			}
		case sentinelOffense:
			v, err := strconv.Atoi(u.Value)
			if err != nil {
				continue
			}
			conv.mu.Lock()
			if v > conv.offense {
				conv.offense = v
			}
			if conv.offense > offenseLimit {
				conv.flagged = true
			}
			conv.mu.Unlock()
		default:
			if err := conv.drafts.Update(draft.Field(u.Field), u.Value); err != nil {
				c.logger.Warn("apply chat field update", "field", u.Field, "error", err)
			}
		}
	}
	return complete
}

// endConversation marks the conversation finished and persists its log.
// sightingID is empty when no sighting was created.
func (c *Controller) endConversation(ctx context.Context, conv *Conversation, sightingID string) {
	conv.mu.Lock()
	conv.done = true
	conv.recordID = sightingID
	transcript, _ := json.Marshal(conv.turns)
	l := &model.ConversationLog{
		ID:           uuid.New().String(),
		UserID:       conv.UserID,
		SightingID:   sightingID,
		Transcript:   string(transcript),
		OffenseCount: conv.offense,
		Flagged:      conv.flagged,
		CreatedAt:    time.Now(),
	}
	conv.mu.Unlock()

	if err := c.logs.CreateConversationLog(ctx, l); err != nil {
		c.logger.Error("persist conversation log", "conversation_id", conv.ID, "error", err)
	}
}

// finishTurn appends the bot's side of the turn to the transcript.
func (c *Controller) finishTurn(_ context.Context, conv *Conversation, res TurnResult) (TurnResult, error) {
	conv.mu.Lock()
	conv.turns = append(conv.turns, Turn{Speaker: SpeakerBot, Text: res.Message, At: time.Now()})
	conv.mu.Unlock()
	return res, nil
}

// OffenseCount returns the current offense counter value.
func (conv *Conversation) OffenseCount() int {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.offense
}

// Flagged reports whether the conversation was terminated for abuse.
func (conv *Conversation) Flagged() bool {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.flagged
}

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
