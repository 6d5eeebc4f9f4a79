package wizard

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/vision"
)

var (
	// ErrBusy is returned while a side effect for the current step is in
	// flight; navigation and submission are disabled until it settles.
	ErrBusy = errors.New("operation in flight for this step")
	// ErrNotAtSubmit is returned when Submit is called away from the
	// submit step.
	ErrNotAtSubmit = errors.New("session is not at the submit step")
	// ErrMustSubmit is returned when Advance is called at the submit
	// step; only a successful Submit moves a session to complete.
	ErrMustSubmit = errors.New("submit step finishes via Submit, not Advance")
	// ErrComplete is returned for navigation on a completed session.
	ErrComplete = errors.New("report already completed")
)

const analysisTimeout = 30 * time.Second

// Analyzer runs image attribute extraction. Failures are *vision.Failure
// values and never block the wizard.
type Analyzer interface {
	Analyze(ctx context.Context, imageData []byte, mimeType string) (*vision.Result, error)
}

// Submitter persists a completed draft and returns the record ID.
type Submitter interface {
	Submit(ctx context.Context, d draft.Draft, reporterID string) (string, error)
}

// Session is one user's pass through the wizard: a draft store, the current
// step, back-navigation history, and an in-flight guard. All methods are
// safe for concurrent use, but only one side-effecting operation runs at a
// time per session.
type Session struct {
	ID     string
	UserID string

	mu         sync.Mutex
	token      string
	drafts     *draft.Store
	current    Step
	history    []Step
	inFlight   bool
	analyzed   string // photo path already enriched, so we don't re-analyze
	lastActive time.Time

	engine *Engine
}

// AdvanceResult reports the outcome of a successful forward transition.
type AdvanceResult struct {
	Step Step
	// Notice carries a non-fatal message, e.g. when image analysis failed
	// and the user will fill attributes manually.
	Notice string
}

// Engine owns the wizard sessions and the collaborators their side effects
// need. Collaborators are injected; there is no ambient global state.
type Engine struct {
	analyzer  Analyzer
	submitter Submitter
	enrich    bool
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine creates a session engine. enrich toggles AI photo enrichment;
// when false, leaving the photo step never calls the analyzer.
func NewEngine(analyzer Analyzer, submitter Submitter, enrich bool, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		analyzer:  analyzer,
		submitter: submitter,
		enrich:    enrich,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Start creates a new session for the given user (empty for anonymous).
func (e *Engine) Start(userID string) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		token:      uuid.New().String(),
		current:    StepStart,
		lastActive: time.Now(),
		engine:     e,
	}
	s.drafts = draft.NewStore(uuid.New().String())

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()
	return s
}

// Get returns the session with the given ID, if it exists.
func (e *Engine) Get(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Remove drops a session.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

// Sweep removes sessions idle longer than maxIdle and returns how many
// were dropped.
func (e *Engine) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	e.mu.Lock()
	defer e.mu.Unlock()
	var n int
	for id, s := range e.sessions {
		s.mu.Lock()
		stale := s.lastActive.Before(cutoff) && !s.inFlight
		s.mu.Unlock()
		if stale {
			delete(e.sessions, id)
			n++
		}
	}
	return n
}

// Draft returns a copy of the session's current draft.
func (s *Session) Draft() draft.Draft {
	return s.drafts.Get()
}

// AIAttributed reports whether a draft field was filled by photo analysis
// rather than the user.
func (s *Session) AIAttributed(f draft.Field) bool {
	return s.drafts.AIAttributed(f)
}

// Step returns the current step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update writes a user-entered field value. Edits are rejected while a
// side effect is in flight.
func (s *Session) Update(field draft.Field, value any) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	s.lastActive = time.Now()
	s.mu.Unlock()
	return s.drafts.Update(field, value)
}

// Advance validates the current step and moves to the next one. Leaving the
// photo step runs AI enrichment when enabled; an analysis failure surfaces
// as a notice and the wizard continues with manual entry.
func (s *Session) Advance(ctx context.Context) (AdvanceResult, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return AdvanceResult{}, ErrBusy
	}
	if s.current == StepComplete {
		s.mu.Unlock()
		return AdvanceResult{}, ErrComplete
	}
	if s.current == StepSubmit {
		s.mu.Unlock()
		return AdvanceResult{}, ErrMustSubmit
	}
	s.lastActive = time.Now()

	d := s.drafts.Get()
	if verr := Validate(s.current, d); verr != nil {
		s.mu.Unlock()
		return AdvanceResult{}, verr
	}

	var notice string
	if s.current == StepUploadPhoto && s.needsAnalysisLocked(d) {
		token := s.token
		s.inFlight = true
		s.mu.Unlock()

		notice = s.runAnalysis(ctx, token, d.PhotoLocalPath)

		s.mu.Lock()
		s.inFlight = false
		if s.token != token {
			// The session was reset while analysis ran; the step graph of
			// the new draft must not be advanced by a stale call.
			s.mu.Unlock()
			return AdvanceResult{}, ErrComplete
		}
	}

	from := s.current
	s.history = append(s.history, from)
	s.current = Next(from, d.Kind, d.LinkedPetID != "")
	step := s.current
	s.mu.Unlock()

	return AdvanceResult{Step: step, Notice: notice}, nil
}

// Back pops the previous step off the history and restores it. At the
// start step it is a no-op. Disabled while a side effect is in flight.
func (s *Session) Back() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return s.current, ErrBusy
	}
	if s.current == StepComplete {
		return s.current, ErrComplete
	}
	s.lastActive = time.Now()
	if len(s.history) == 0 {
		return s.current, nil
	}
	s.current = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return s.current, nil
}

// Submit runs the submission pipeline for the draft. It validates the
// contact step, holds the in-flight guard for the whole call, and moves to
// complete only on success. On failure the draft is preserved for retry.
func (s *Session) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", ErrBusy
	}
	if s.current != StepSubmit {
		s.mu.Unlock()
		return "", ErrNotAtSubmit
	}
	s.lastActive = time.Now()

	d := s.drafts.Get()
	if verr := Validate(StepSubmit, d); verr != nil {
		s.mu.Unlock()
		return "", verr
	}

	token := s.token
	s.inFlight = true
	s.mu.Unlock()

	id, err := s.engine.submitter.Submit(ctx, d, s.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.token != token {
		return "", ErrComplete
	}
	if err != nil {
		return "", err
	}
	s.history = append(s.history, s.current)
	s.current = StepComplete
	return id, nil
}

// Reset discards the draft and starts the wizard over. Any in-flight
// result for the old draft is discarded when it lands.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = uuid.New().String()
	s.drafts.Reset(uuid.New().String())
	s.current = StepStart
	s.history = nil
	s.analyzed = ""
	s.lastActive = time.Now()
}

func (s *Session) needsAnalysisLocked(d draft.Draft) bool {
	return s.engine.enrich &&
		s.engine.analyzer != nil &&
		d.PhotoLocalPath != "" &&
		s.analyzed != d.PhotoLocalPath
}

// runAnalysis reads the photo, calls the analyzer, and merges suggestions
// into the draft unless the session was reset in the meantime. It returns
// a user-facing notice for non-fatal failures.
func (s *Session) runAnalysis(ctx context.Context, token, photoPath string) string {
	data, err := os.ReadFile(photoPath)
	if err != nil {
		s.engine.logger.Warn("read photo for analysis", "path", photoPath, "error", err)
		return "We couldn't analyze your photo; please fill in the details yourself."
	}

	actx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	result, err := s.engine.analyzer.Analyze(actx, data, mimeTypeForPath(photoPath))
	if err != nil {
		if f, ok := vision.AsFailure(err); ok && f.Reason == vision.NoPetsDetected {
			return "We couldn't spot a pet in your photo; please fill in the details yourself."
		}
		s.engine.logger.Warn("photo analysis", "session_id", s.ID, "error", err)
		return "Photo analysis is unavailable right now; please fill in the details yourself."
	}

	s.mu.Lock()
	stale := s.token != token
	if !stale {
		s.analyzed = photoPath
	}
	s.mu.Unlock()
	if stale {
		return ""
	}

	s.drafts.MergeSuggested(result.Suggestion())
	return ""
}

func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
