package wizard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/vision"
)

type stubAnalyzer struct {
	calls  atomic.Int64
	result *vision.Result
	err    error
}

func (a *stubAnalyzer) Analyze(ctx context.Context, imageData []byte, mimeType string) (*vision.Result, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

type stubSubmitter struct {
	calls atomic.Int64
	id    string
	err   error
}

func (s *stubSubmitter) Submit(ctx context.Context, d draft.Draft, reporterID string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

func writeTestPhoto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pet.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustUpdate(t *testing.T, s *Session, f draft.Field, v any) {
	t.Helper()
	if err := s.Update(f, v); err != nil {
		t.Fatalf("Update(%s, %v): %v", f, v, err)
	}
}

func mustAdvance(t *testing.T, s *Session) AdvanceResult {
	t.Helper()
	res, err := s.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance from %s: %v", s.Step(), err)
	}
	return res
}

func TestAdvanceBlocksOnValidation(t *testing.T) {
	engine := NewEngine(nil, &stubSubmitter{id: "sg-1"}, false, nil)
	sess := engine.Start("")

	_, err := sess.Advance(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Advance on empty draft = %v, want ValidationError", err)
	}
	if verr.Step != StepStart {
		t.Errorf("error step = %s, want start", verr.Step)
	}
	if sess.Step() != StepStart {
		t.Errorf("step moved to %s despite validation failure", sess.Step())
	}
}

func TestAdvanceAnalyzesPhotoOnce(t *testing.T) {
	analyzer := &stubAnalyzer{result: &vision.Result{
		Pets: []vision.PetGuess{{
			Species:    "dog",
			Breeds:     []string{"Labrador"},
			Colors:     []string{"yellow"},
			Confidence: 0.9,
		}},
	}}
	engine := NewEngine(analyzer, &stubSubmitter{id: "sg-1"}, true, nil)
	sess := engine.Start("")

	mustUpdate(t, sess, draft.FieldReportKind, "found_stray")
	mustAdvance(t, sess) // start -> upload_photo

	photoPath := writeTestPhoto(t)
	mustUpdate(t, sess, draft.FieldPhotoLocalPath, photoPath)

	res := mustAdvance(t, sess) // upload_photo -> edit_pet, with analysis
	if res.Step != StepEditPet {
		t.Fatalf("step after photo = %s, want edit_pet", res.Step)
	}
	if res.Notice != "" {
		t.Errorf("unexpected notice %q", res.Notice)
	}
	if got := analyzer.calls.Load(); got != 1 {
		t.Fatalf("analyzer called %d times, want 1", got)
	}

	d := sess.Draft()
	if d.Species != "dog" {
		t.Errorf("Species = %q, want analysis suggestion", d.Species)
	}
	if d.Breed != "Labrador mix" {
		t.Errorf("Breed = %q, want %q", d.Breed, "Labrador mix")
	}
	if !sess.AIAttributed(draft.FieldSpecies) {
		t.Error("species should be AI-attributed")
	}

	// Going back and forward over the same photo must not re-analyze.
	if _, err := sess.Back(); err != nil {
		t.Fatal(err)
	}
	mustAdvance(t, sess)
	if got := analyzer.calls.Load(); got != 1 {
		t.Errorf("analyzer called %d times after revisit, want 1", got)
	}
}

func TestAdvanceProceedsPastFailedAnalysis(t *testing.T) {
	analyzer := &stubAnalyzer{err: &vision.Failure{Reason: vision.EmptyResponse}}
	engine := NewEngine(analyzer, &stubSubmitter{id: "sg-1"}, true, nil)
	sess := engine.Start("")

	mustUpdate(t, sess, draft.FieldReportKind, "found_stray")
	mustAdvance(t, sess)
	mustUpdate(t, sess, draft.FieldPhotoLocalPath, writeTestPhoto(t))

	res := mustAdvance(t, sess)
	if res.Step != StepEditPet {
		t.Fatalf("step after failed analysis = %s, want edit_pet", res.Step)
	}
	if res.Notice == "" {
		t.Error("expected a user-facing notice for the failed analysis")
	}
	if d := sess.Draft(); d.Species != "" {
		t.Errorf("Species = %q, failed analysis must not write fields", d.Species)
	}
}

func TestBackIsNoOpAtStart(t *testing.T) {
	engine := NewEngine(nil, &stubSubmitter{id: "sg-1"}, false, nil)
	sess := engine.Start("")

	step, err := sess.Back()
	if err != nil {
		t.Fatal(err)
	}
	if step != StepStart {
		t.Errorf("Back at start = %s, want start", step)
	}
}

func TestFullFoundStrayFlow(t *testing.T) {
	submitter := &stubSubmitter{id: "sg-42"}
	engine := NewEngine(nil, submitter, false, nil)
	sess := engine.Start("user-1")

	mustUpdate(t, sess, draft.FieldReportKind, "found_stray")
	mustAdvance(t, sess) // -> upload_photo
	mustUpdate(t, sess, draft.FieldPhotoLocalPath, writeTestPhoto(t))
	mustAdvance(t, sess) // -> edit_pet (no analyzer configured)
	mustUpdate(t, sess, draft.FieldSpecies, "dog")
	mustUpdate(t, sess, draft.FieldColors, "brown")
	mustAdvance(t, sess) // -> locate_pet
	mustUpdate(t, sess, draft.FieldLatitude, 34.0522)
	mustUpdate(t, sess, draft.FieldLongitude, -118.2437)
	mustAdvance(t, sess) // -> add_time
	mustUpdate(t, sess, draft.FieldLastSeen, time.Now().Add(-time.Hour))
	mustAdvance(t, sess) // -> add_contact
	mustUpdate(t, sess, draft.FieldContactPhone, "+12125551234")
	mustUpdate(t, sess, draft.FieldContactCountry, "US")
	mustAdvance(t, sess) // -> submit

	if sess.Step() != StepSubmit {
		t.Fatalf("step before submit = %s", sess.Step())
	}

	id, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "sg-42" {
		t.Errorf("Submit() = %q, want sg-42", id)
	}
	if sess.Step() != StepComplete {
		t.Errorf("step after submit = %s, want complete", sess.Step())
	}
	if got := submitter.calls.Load(); got != 1 {
		t.Errorf("submitter called %d times, want 1", got)
	}

	// Navigation after completion is rejected.
	if _, err := sess.Advance(context.Background()); !errors.Is(err, ErrComplete) {
		t.Errorf("Advance after complete = %v, want ErrComplete", err)
	}
	if _, err := sess.Submit(context.Background()); !errors.Is(err, ErrNotAtSubmit) {
		t.Errorf("Submit after complete = %v, want ErrNotAtSubmit", err)
	}
}

func TestSubmitAwayFromSubmitStep(t *testing.T) {
	engine := NewEngine(nil, &stubSubmitter{id: "sg-1"}, false, nil)
	sess := engine.Start("")

	if _, err := sess.Submit(context.Background()); !errors.Is(err, ErrNotAtSubmit) {
		t.Errorf("Submit at start = %v, want ErrNotAtSubmit", err)
	}
}

// driveToSubmit fills a found_stray draft and advances the session to the
// submit step.
func driveToSubmit(t *testing.T, sess *Session) {
	t.Helper()
	mustUpdate(t, sess, draft.FieldReportKind, "found_stray")
	mustAdvance(t, sess)
	mustUpdate(t, sess, draft.FieldPhotoLocalPath, writeTestPhoto(t))
	mustAdvance(t, sess)
	mustUpdate(t, sess, draft.FieldSpecies, "cat")
	mustUpdate(t, sess, draft.FieldColors, "white")
	mustAdvance(t, sess)
	mustUpdate(t, sess, draft.FieldLatitude, 1.0)
	mustUpdate(t, sess, draft.FieldLongitude, 2.0)
	mustAdvance(t, sess)
	mustUpdate(t, sess, draft.FieldLastSeen, time.Now().Add(-time.Minute))
	mustAdvance(t, sess)
	mustUpdate(t, sess, draft.FieldContactPhone, "+12125551234")
	mustUpdate(t, sess, draft.FieldContactCountry, "US")
	mustAdvance(t, sess)
	if got := sess.Step(); got != StepSubmit {
		t.Fatalf("step after walk = %s, want submit", got)
	}
}

func TestAdvanceAtSubmitRequiresSubmission(t *testing.T) {
	submitter := &stubSubmitter{id: "sg-1"}
	engine := NewEngine(nil, submitter, false, nil)
	sess := engine.Start("")
	driveToSubmit(t, sess)

	// Advancing past submit without the submission pipeline is refused and
	// the session stays usable.
	if _, err := sess.Advance(context.Background()); !errors.Is(err, ErrMustSubmit) {
		t.Fatalf("Advance at submit = %v, want ErrMustSubmit", err)
	}
	if got := sess.Step(); got != StepSubmit {
		t.Fatalf("step after refused advance = %s, want submit", got)
	}
	if got := submitter.calls.Load(); got != 0 {
		t.Fatalf("submitter called %d times by Advance, want 0", got)
	}

	id, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit after refused advance: %v", err)
	}
	if id != "sg-1" {
		t.Errorf("Submit() = %q, want sg-1", id)
	}
	if got := submitter.calls.Load(); got != 1 {
		t.Errorf("submitter called %d times, want 1", got)
	}
	if sess.Step() != StepComplete {
		t.Errorf("step after submit = %s, want complete", sess.Step())
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	submitter := &stubSubmitter{err: errors.New("backend down")}
	engine := NewEngine(nil, submitter, false, nil)
	sess := engine.Start("")
	driveToSubmit(t, sess)

	if _, err := sess.Submit(context.Background()); err == nil {
		t.Fatal("Submit should fail while the backend is down")
	}
	if sess.Step() != StepSubmit {
		t.Errorf("step after failed submit = %s, want submit", sess.Step())
	}

	submitter.err = nil
	submitter.id = "sg-retry"
	id, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if id != "sg-retry" {
		t.Errorf("retry Submit() = %q, want sg-retry", id)
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	engine := NewEngine(nil, &stubSubmitter{id: "sg-1"}, false, nil)
	sess := engine.Start("")

	if n := engine.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep(1h) = %d, fresh session must survive", n)
	}
	if n := engine.Sweep(0); n != 1 {
		t.Errorf("Sweep(0) = %d, want 1", n)
	}
	if _, ok := engine.Get(sess.ID); ok {
		t.Error("swept session still retrievable")
	}
}
