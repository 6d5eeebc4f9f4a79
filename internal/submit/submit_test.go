package submit

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/model"
)

type fakeRecorder struct {
	mu        sync.Mutex
	sightings []*model.Sighting
	contacts  []*model.SightingContact
	fail      error
}

func (r *fakeRecorder) CreateSighting(ctx context.Context, s *model.Sighting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sightings = append(r.sightings, s)
	return nil
}

func (r *fakeRecorder) CreateSightingContact(ctx context.Context, c *model.SightingContact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, c)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sightings)
}

type fakeGeocoder struct {
	name string
	err  error
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return g.name, g.err
}

type fakeStorage struct {
	url string
	err error
}

func (s *fakeStorage) Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.url + "/" + key, nil
}

func f64(v float64) *float64 { return &v }

func baseDraft() draft.Draft {
	return draft.Draft{
		ID:             "draft-1",
		Species:        "dog",
		Colors:         "brown",
		Latitude:       f64(34.052),
		Longitude:      f64(-118.24),
		ContactName:    "Ana",
		ContactPhone:   "+12125551234",
		ContactCountry: "US",
	}
}

func TestSubmitIsAtMostOncePerDraft(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, nil, nil)
	d := baseDraft()

	first, err := p.Submit(context.Background(), d, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := p.Submit(context.Background(), d, "user-1")
	if err != nil {
		t.Fatalf("repeat Submit: %v", err)
	}
	if first != second {
		t.Errorf("repeat Submit returned %q, want the original ID %q", second, first)
	}
	if got := rec.count(); got != 1 {
		t.Errorf("draft persisted %d times, want 1", got)
	}
}

func TestSubmitConcurrentCallsShareOneInsert(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, nil, nil)
	d := baseDraft()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.Submit(context.Background(), d, "user-1")
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if got := rec.count(); got != 1 {
		t.Fatalf("draft persisted %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Errorf("call %d got ID %q, others got %q", i, ids[i], ids[0])
		}
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	rec := &fakeRecorder{fail: errors.New("disk full")}
	p := NewPipeline(rec, nil, nil, nil)
	d := baseDraft()

	_, err := p.Submit(context.Background(), d, "")
	se, ok := AsError(err)
	if !ok || se.Kind != PersistFailed {
		t.Fatalf("Submit error = %v, want PersistFailed", err)
	}

	rec.fail = nil
	if _, err := p.Submit(context.Background(), d, ""); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if got := rec.count(); got != 1 {
		t.Errorf("draft persisted %d times after retry, want 1", got)
	}
}

func TestSubmitLocationPrefersExplicitText(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, &fakeGeocoder{name: "Echo Park, Los Angeles"}, nil)
	d := baseDraft()
	d.LocationText = "123 Main St"

	if _, err := p.Submit(context.Background(), d, ""); err != nil {
		t.Fatal(err)
	}
	if got := rec.sightings[0].LastSeenLocation; got != "123 Main St" {
		t.Errorf("LastSeenLocation = %q, explicit text must win over geocoding", got)
	}
}

func TestSubmitLocationGeocodesCoordinates(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, &fakeGeocoder{name: "Echo Park, Los Angeles"}, nil)

	if _, err := p.Submit(context.Background(), baseDraft(), ""); err != nil {
		t.Fatal(err)
	}
	if got := rec.sightings[0].LastSeenLocation; got != "Echo Park, Los Angeles" {
		t.Errorf("LastSeenLocation = %q, want the geocoded name", got)
	}
}

func TestSubmitLocationFallsBackToCoordinates(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, &fakeGeocoder{err: errors.New("service down")}, nil)

	if _, err := p.Submit(context.Background(), baseDraft(), ""); err != nil {
		t.Fatal(err)
	}
	if got := rec.sightings[0].LastSeenLocation; got != "34.052000,-118.240000" {
		t.Errorf("LastSeenLocation = %q, want six-decimal fallback", got)
	}
}

func TestComposeNote(t *testing.T) {
	tests := []struct {
		name string
		d    draft.Draft
		want string
	}{
		{
			"notes only",
			draft.Draft{Notes: "seen near the park"},
			"seen near the park",
		},
		{
			"collar and behavior",
			draft.Draft{
				Notes:             "seen near the park",
				CollarPresence:    model.CollarYes,
				CollarDescription: "red, tag says Rex",
				Behavior:          model.BehaviorFriendly,
			},
			"seen near the park\nhas a collar on - red, tag says Rex\nPet behavior: friendly",
		},
		{
			"collar without description omitted",
			draft.Draft{Notes: "spotted", CollarPresence: model.CollarYes},
			"spotted",
		},
		{
			"no collar with description omitted",
			draft.Draft{Notes: "spotted", CollarPresence: model.CollarNone, CollarDescription: "red"},
			"spotted",
		},
		{
			"behavior with empty notes",
			draft.Draft{Behavior: model.BehaviorScared},
			"\nPet behavior: scared",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeNote(tt.d); got != tt.want {
				t.Errorf("ComposeNote = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubmitUploadsLocalPhoto(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pet.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &fakeRecorder{}
	p := NewPipeline(rec, &fakeStorage{url: "https://photos.test"}, nil, nil)
	d := baseDraft()
	d.PhotoLocalPath = path

	if _, err := p.Submit(context.Background(), d, ""); err != nil {
		t.Fatal(err)
	}
	want := "https://photos.test/sightings/draft-1/pet.jpg"
	if got := rec.sightings[0].PhotoURL; got != want {
		t.Errorf("PhotoURL = %q, want %q", got, want)
	}
}

func TestSubmitRemotePhotoSkipsUpload(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, &fakeStorage{err: errors.New("must not be called")}, nil, nil)
	d := baseDraft()
	d.PhotoRemoteURL = "https://photos.test/existing.jpg"

	if _, err := p.Submit(context.Background(), d, ""); err != nil {
		t.Fatal(err)
	}
	if got := rec.sightings[0].PhotoURL; got != d.PhotoRemoteURL {
		t.Errorf("PhotoURL = %q, want the pre-existing remote URL", got)
	}
}

func TestSubmitPhotoUploadFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pet.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF}, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &fakeRecorder{}
	p := NewPipeline(rec, &fakeStorage{err: errors.New("bucket unavailable")}, nil, nil)
	d := baseDraft()
	d.PhotoLocalPath = path

	_, err := p.Submit(context.Background(), d, "")
	se, ok := AsError(err)
	if !ok || se.Kind != PhotoUploadFailed {
		t.Fatalf("Submit error = %v, want PhotoUploadFailed", err)
	}
	if rec.count() != 0 {
		t.Error("nothing should be persisted when the photo upload fails")
	}
}

func TestSubmitStoresContact(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, nil, nil)

	if _, err := p.Submit(context.Background(), baseDraft(), "user-1"); err != nil {
		t.Fatal(err)
	}
	if len(rec.contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(rec.contacts))
	}
	c := rec.contacts[0]
	if c.SightingID != rec.sightings[0].ID {
		t.Errorf("contact SightingID = %q, want %q", c.SightingID, rec.sightings[0].ID)
	}
	if c.Phone != "+12125551234" || c.CountryCode != "US" {
		t.Errorf("contact = %+v", c)
	}
}
