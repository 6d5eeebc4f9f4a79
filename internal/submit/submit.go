// Package submit persists a completed report draft: photo upload first,
// then location resolution, notes composition, and the sighting record
// itself. A draft is submitted at most once; concurrent calls for the same
// draft collapse into a single persistence attempt.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/geocode"
	"github.com/pawfound/sighting-wizard/internal/model"
	"github.com/pawfound/sighting-wizard/internal/photo"
)

// ErrorKind classifies submission failures.
type ErrorKind string

const (
	PhotoUploadFailed ErrorKind = "PHOTO_UPLOAD_FAILED"
	PersistFailed     ErrorKind = "PERSIST_FAILED"
)

// Error is a typed submission failure. The draft survives it, so callers
// may surface a retryable banner without losing entered data.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError unwraps err into a submission *Error, if it is one.
func AsError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}

// Recorder is the narrow persistence surface the pipeline needs.
type Recorder interface {
	CreateSighting(ctx context.Context, s *model.Sighting) error
	CreateSightingContact(ctx context.Context, c *model.SightingContact) error
}

const geocodeTimeout = 10 * time.Second

// Pipeline orchestrates the photo-upload-then-persist sequence.
type Pipeline struct {
	recorder Recorder
	photos   photo.Storage
	geocoder geocode.Geocoder
	logger   *slog.Logger

	group     singleflight.Group
	mu        sync.Mutex
	completed map[string]string // draft ID -> persisted sighting ID
}

// NewPipeline creates a Pipeline. photos and geocoder may be nil when the
// deployment has no object storage or geocoding configured; drafts without
// local photos or with explicit location text still submit fine.
func NewPipeline(recorder Recorder, photos photo.Storage, geocoder geocode.Geocoder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		recorder:  recorder,
		photos:    photos,
		geocoder:  geocoder,
		logger:    logger,
		completed: make(map[string]string),
	}
}

// Submit persists the draft and returns the new sighting ID. Calls are
// serialized per draft ID: while one submission for a draft is in flight,
// concurrent calls share its outcome, and once a draft has been persisted
// further calls return the same record ID instead of creating duplicates.
func (p *Pipeline) Submit(ctx context.Context, d draft.Draft, reporterID string) (string, error) {
	v, err, _ := p.group.Do(d.ID, func() (interface{}, error) {
		p.mu.Lock()
		if id, ok := p.completed[d.ID]; ok {
			p.mu.Unlock()
			return id, nil
		}
		p.mu.Unlock()

		id, err := p.submitOnce(ctx, d, reporterID)
		if err != nil {
			return "", err
		}

		p.mu.Lock()
		p.completed[d.ID] = id
		p.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Pipeline) submitOnce(ctx context.Context, d draft.Draft, reporterID string) (string, error) {
	// Step 1: photo upload. The remote URL wins once set; a local-only
	// photo must be uploaded before anything is persisted.
	photoURL := d.PhotoRemoteURL
	if photoURL == "" && d.PhotoLocalPath != "" {
		url, err := p.uploadPhoto(ctx, d)
		if err != nil {
			return "", &Error{Kind: PhotoUploadFailed, Message: err.Error(), Err: err}
		}
		photoURL = url
	}

	// Step 2: resolve a human-readable location string.
	location := p.resolveLocation(ctx, d)

	// Step 3: compose notes with collar and behavior annotations.
	note := ComposeNote(d)

	// Step 4: persist.
	now := time.Now().UTC()
	sighting := &model.Sighting{
		ID:                uuid.New().String(),
		Name:              d.PetName,
		Species:           d.Species,
		Breed:             d.Breed,
		Colors:            d.Colors,
		Gender:            d.Gender,
		Features:          d.Features,
		Size:              d.Size,
		CollarDescription: d.CollarDescription,
		PhotoURL:          photoURL,
		Note:              note,
		LastSeenLocation:  location,
		PetID:             d.LinkedPetID,
		LinkedSightingID:  d.LinkedSightingID,
		ReporterID:        reporterID,
		ReporterName:      d.ContactName,
		ReporterPhone:     d.ContactPhone,
		CreatedAt:         now,
	}
	if d.Latitude != nil {
		sighting.LastSeenLat = *d.Latitude
	}
	if d.Longitude != nil {
		sighting.LastSeenLong = *d.Longitude
	}
	if d.LastSeen != nil {
		sighting.LastSeenTime = d.LastSeen.UTC()
	}

	if err := p.recorder.CreateSighting(ctx, sighting); err != nil {
		return "", &Error{Kind: PersistFailed, Message: err.Error(), Err: err}
	}

	if d.ContactPhone != "" {
		contact := &model.SightingContact{
			ID:          uuid.New().String(),
			SightingID:  sighting.ID,
			Name:        d.ContactName,
			Phone:       d.ContactPhone,
			CountryCode: d.ContactCountry,
			CreatedAt:   now,
		}
		if err := p.recorder.CreateSightingContact(ctx, contact); err != nil {
			// The sighting itself is saved; losing the side-table row is
			// not worth failing the whole submission over.
			p.logger.Warn("store sighting contact", "sighting_id", sighting.ID, "error", err)
		}
	}

	return sighting.ID, nil
}

func (p *Pipeline) uploadPhoto(ctx context.Context, d draft.Draft) (string, error) {
	if p.photos == nil {
		return "", fmt.Errorf("photo storage not configured")
	}

	f, err := os.Open(d.PhotoLocalPath)
	if err != nil {
		return "", fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat photo: %w", err)
	}

	name := filepath.Base(d.PhotoLocalPath)
	key := fmt.Sprintf("sightings/%s/%s", d.ID, name)
	return p.photos.Upload(ctx, key, contentTypeForName(name), f, info.Size())
}

// resolveLocation prefers explicit free text; otherwise it reverse-geocodes
// the captured coordinates, falling back to a "lat,lng" string with six
// decimal places when geocoding is unavailable or fails.
func (p *Pipeline) resolveLocation(ctx context.Context, d draft.Draft) string {
	if d.LocationText != "" {
		return d.LocationText
	}
	if !d.HasCoordinates() {
		return ""
	}

	lat, lng := *d.Latitude, *d.Longitude
	if p.geocoder != nil {
		gctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
		defer cancel()
		name, err := p.geocoder.ReverseGeocode(gctx, lat, lng)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			p.logger.Warn("reverse geocode", "lat", lat, "lng", lng, "error", err)
		}
	}
	return FormatCoordinates(lat, lng)
}

// FormatCoordinates renders the geocoding fallback string.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

// ComposeNote appends structured collar and behavior annotations to the
// free-text notes, each on its own line, only when present.
func ComposeNote(d draft.Draft) string {
	note := d.Notes
	if d.CollarPresence == model.CollarYes && d.CollarDescription != "" {
		note += "\nhas a collar on - " + d.CollarDescription
	}
	if d.Behavior != "" {
		note += "\nPet behavior: " + string(d.Behavior)
	}
	return note
}

func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
