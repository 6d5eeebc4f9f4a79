// Package vision turns a pet photo into a best-effort structured attribute
// set using a generative vision model. Every failure is recoverable: the
// wizard continues with manual entry.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/genai"
	"github.com/pawfound/sighting-wizard/internal/model"
)

// FailureReason classifies why analysis produced no usable attributes.
type FailureReason string

const (
	// EmptyResponse covers blank model output and unparseable JSON.
	EmptyResponse FailureReason = "EMPTY_RESPONSE"
	// NoPetsDetected means the model answered but found no animal.
	NoPetsDetected FailureReason = "NO_PETS_DETECTED"
	// ServiceError covers transport and API failures.
	ServiceError FailureReason = "SERVICE_ERROR"
	// MaxFileSize is raised by the client-side pre-check, before any call.
	MaxFileSize FailureReason = "MAX_FILE_SIZE_ERROR"
	// UnsupportedMIMEType is raised by the pre-check for non-JPEG/PNG files.
	UnsupportedMIMEType FailureReason = "UNSUPPORTED_MIME_TYPE"
)

// Failure is the error arm of an analysis result.
type Failure struct {
	Reason FailureReason
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
}

// AsFailure unwraps err into a *Failure, if it is one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// PetGuess is one detected animal with its suggested attributes.
type PetGuess struct {
	Species    string     `json:"species"`
	Breeds     []string   `json:"breeds"`
	Colors     []string   `json:"colors"`
	Gender     string     `json:"gender"`
	Size       model.Size `json:"size"`
	Features   []string   `json:"distinctive_features"`
	Collar     []string   `json:"collar_description"`
	Confidence float64    `json:"confidence"`
}

// Result is the success arm of an analysis: one or more detected pets plus a
// free-text quality note.
type Result struct {
	Pets         []PetGuess `json:"pets"`
	ImageQuality string     `json:"image_quality"`
}

// Analyzer sends photos to a generative vision model and parses the strict
// JSON attribute schema out of its reply.
type Analyzer struct {
	client genai.Client
	model  string
}

// NewAnalyzer creates an Analyzer on top of the given model client.
func NewAnalyzer(client genai.Client, modelName string) *Analyzer {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &Analyzer{client: client, model: modelName}
}

// Analyze runs attribute extraction on an image. The returned error, when
// non-nil, is always a *Failure; none of them are fatal to the report flow.
func (a *Analyzer) Analyze(ctx context.Context, imageData []byte, mimeType string) (*Result, error) {
	temp := float32(0.1)
	text, err := a.client.GenerateContent(ctx, a.model, []genai.Part{
		{Text: extractionPrompt},
		{Data: imageData, MIMEType: mimeType},
	}, &genai.GenerateConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, &Failure{Reason: ServiceError, Detail: err.Error()}
	}

	text = cleanMarkdownFences(text)
	if text == "" {
		return nil, &Failure{Reason: EmptyResponse, Detail: "model returned no content"}
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		// Malformed JSON degrades to the same recoverable failure as an
		// empty reply rather than propagating a parse error.
		return nil, &Failure{Reason: EmptyResponse, Detail: fmt.Sprintf("unparseable response: %v", err)}
	}
	if len(result.Pets) == 0 {
		return nil, &Failure{Reason: NoPetsDetected}
	}
	return &result, nil
}

// Suggestion converts the highest-confidence guess into draft field
// suggestions.
func (r *Result) Suggestion() draft.Suggestion {
	if len(r.Pets) == 0 {
		return draft.Suggestion{}
	}
	best := r.Pets[0]
	for _, p := range r.Pets[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return draft.Suggestion{
		Species:  best.Species,
		Breed:    ComposeBreed(best.Breeds),
		Colors:   strings.Join(best.Colors, ", "),
		Gender:   best.Gender,
		Size:     best.Size,
		Features: strings.Join(best.Features, "; "),
		Collar:   strings.Join(best.Collar, "; "),
	}
}

// ComposeBreed renders the breed naming policy: one or two identifiable
// breeds become "<Breed1> <Breed2> mix", and an empty or unidentifiable
// list becomes "Mixed breed".
func ComposeBreed(breeds []string) string {
	var named []string
	for _, b := range breeds {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		switch strings.ToLower(b) {
		case "unknown", "mixed", "mixed breed", "mix":
			continue
		}
		named = append(named, b)
		if len(named) == 2 {
			break
		}
	}
	if len(named) == 0 {
		return "Mixed breed"
	}
	return strings.Join(named, " ") + " mix"
}

// cleanMarkdownFences strips a ```json ... ``` wrapper if the model added
// one despite the JSON response MIME type.
func cleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[7:]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}
