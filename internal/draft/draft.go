// Package draft holds the mutable working record for one in-progress
// sighting report. A Store is created per report session and mutated
// field-by-field by user input, by AI suggestions, and by pickers; it is
// consumed exactly once by the submission pipeline.
package draft

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pawfound/sighting-wizard/internal/model"
)

// Field identifies a single draft attribute for Update calls.
type Field string

const (
	FieldReportKind        Field = "report_kind"
	FieldLinkedPetID       Field = "linked_pet_id"
	FieldLinkedSightingID  Field = "linked_sighting_id"
	FieldPetName           Field = "pet_name"
	FieldSpecies           Field = "species"
	FieldBreed             Field = "breed"
	FieldColors            Field = "colors"
	FieldGender            Field = "gender"
	FieldAge               Field = "age"
	FieldSize              Field = "size"
	FieldFeatures          Field = "features"
	FieldCollarPresence    Field = "collar_presence"
	FieldCollarDescription Field = "collar_description"
	FieldBehavior          Field = "behavior"
	FieldPhotoLocalPath    Field = "photo_local_path"
	FieldPhotoRemoteURL    Field = "photo_remote_url"
	FieldLocationText      Field = "location_text"
	FieldLatitude          Field = "latitude"
	FieldLongitude         Field = "longitude"
	FieldLastSeen          Field = "last_seen"
	FieldNotes             Field = "notes"
	FieldContactName       Field = "contact_name"
	FieldContactPhone      Field = "contact_phone"
	FieldContactCountry    Field = "contact_country"
)

// Draft is the report-in-progress record. All attributes are optional until
// validated by the wizard's per-step rules.
type Draft struct {
	ID               string
	Kind             model.ReportKind
	LinkedPetID      string
	LinkedSightingID string

	PetName  string
	Species  string
	Breed    string
	Colors   string
	Gender   string
	Age      string
	Size     model.Size
	Features string

	CollarPresence    model.CollarPresence
	CollarDescription string
	Behavior          model.Behavior

	// Exactly one of these is authoritative for persistence; the remote URL
	// wins once set.
	PhotoLocalPath string
	PhotoRemoteURL string

	LocationText string
	Latitude     *float64
	Longitude    *float64
	LastSeen     *time.Time

	Notes          string
	ContactName    string
	ContactPhone   string
	ContactCountry string
}

// PhotoURL returns the authoritative photo reference: the remote URL once
// uploaded, otherwise the device-local path.
func (d *Draft) PhotoURL() string {
	if d.PhotoRemoteURL != "" {
		return d.PhotoRemoteURL
	}
	return d.PhotoLocalPath
}

// HasPhoto reports whether any photo reference is present.
func (d *Draft) HasPhoto() bool {
	return d.PhotoLocalPath != "" || d.PhotoRemoteURL != ""
}

// HasCoordinates reports whether both latitude and longitude are set.
func (d *Draft) HasCoordinates() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// Suggestion is the subset of attributes the image analysis adapter may
// propose. Empty strings mean "no suggestion for this field".
type Suggestion struct {
	Species  string
	Breed    string
	Colors   string
	Gender   string
	Size     model.Size
	Features string
	Collar   string
}

// Store owns one Draft and tracks which fields were AI-suggested rather than
// user-entered. It is safe for concurrent use; each report session owns its
// own Store exclusively.
type Store struct {
	mu          sync.Mutex
	draft       Draft
	aiAttribute map[Field]bool
}

// NewStore creates an empty Store for a new report session.
func NewStore(id string) *Store {
	return &Store{
		draft:       Draft{ID: id},
		aiAttribute: make(map[Field]bool),
	}
}

// Get returns a copy of the current draft.
func (s *Store) Get() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// AIAttributed reports whether the given field currently holds an
// AI-suggested value the user has not overridden.
func (s *Store) AIAttributed(f Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiAttribute[f]
}

// Update overwrites a single field with a user-provided value. User intent
// always wins, so any AI attribution on the field is cleared. Values are
// coerced per the field's declared type: strings for text fields, float64
// for coordinates, RFC 3339 strings (or time.Time) for timestamps.
func (s *Store) Update(f Field, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.set(f, value); err != nil {
		return err
	}
	delete(s.aiAttribute, f)
	return nil
}

// MergeSuggested applies AI-proposed attributes, writing a field only when
// its current value is empty, and marks written fields as AI-attributed.
// It never overwrites a value the user already entered.
func (s *Store) MergeSuggested(sug Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merge := func(f Field, dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			s.aiAttribute[f] = true
		}
	}
	merge(FieldSpecies, &s.draft.Species, sug.Species)
	merge(FieldBreed, &s.draft.Breed, sug.Breed)
	merge(FieldColors, &s.draft.Colors, sug.Colors)
	merge(FieldGender, &s.draft.Gender, sug.Gender)
	merge(FieldFeatures, &s.draft.Features, sug.Features)
	merge(FieldCollarDescription, &s.draft.CollarDescription, sug.Collar)
	if s.draft.Size == "" && sug.Size != "" {
		s.draft.Size = sug.Size
		s.aiAttribute[FieldSize] = true
	}
}

// Reset discards the draft and starts over with a fresh ID.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = Draft{ID: id}
	s.aiAttribute = make(map[Field]bool)
}

func (s *Store) set(f Field, value any) error {
	switch f {
	case FieldReportKind:
		v, err := asString(f, value)
		if err != nil {
			return err
		}
		kind := model.ReportKind(v)
		if v != "" && !kind.Valid() {
			return fmt.Errorf("unknown report kind %q", v)
		}
		s.draft.Kind = kind
	case FieldLinkedPetID:
		return assignString(&s.draft.LinkedPetID, f, value)
	case FieldLinkedSightingID:
		return assignString(&s.draft.LinkedSightingID, f, value)
	case FieldPetName:
		return assignString(&s.draft.PetName, f, value)
	case FieldSpecies:
		return assignString(&s.draft.Species, f, value)
	case FieldBreed:
		return assignString(&s.draft.Breed, f, value)
	case FieldColors:
		return assignString(&s.draft.Colors, f, value)
	case FieldGender:
		return assignString(&s.draft.Gender, f, value)
	case FieldAge:
		return assignString(&s.draft.Age, f, value)
	case FieldSize:
		v, err := asString(f, value)
		if err != nil {
			return err
		}
		size := model.Size(v)
		if v != "" && !size.Valid() {
			return fmt.Errorf("unknown size %q", v)
		}
		s.draft.Size = size
	case FieldFeatures:
		return assignString(&s.draft.Features, f, value)
	case FieldCollarPresence:
		v, err := asString(f, value)
		if err != nil {
			return err
		}
		collar := model.CollarPresence(v)
		if v != "" && !collar.Valid() {
			return fmt.Errorf("unknown collar answer %q", v)
		}
		s.draft.CollarPresence = collar
	case FieldCollarDescription:
		return assignString(&s.draft.CollarDescription, f, value)
	case FieldBehavior:
		v, err := asString(f, value)
		if err != nil {
			return err
		}
		behavior := model.Behavior(v)
		if v != "" && !behavior.Valid() {
			return fmt.Errorf("unknown behavior %q", v)
		}
		s.draft.Behavior = behavior
	case FieldPhotoLocalPath:
		return assignString(&s.draft.PhotoLocalPath, f, value)
	case FieldPhotoRemoteURL:
		return assignString(&s.draft.PhotoRemoteURL, f, value)
	case FieldLocationText:
		return assignString(&s.draft.LocationText, f, value)
	case FieldLatitude:
		return assignFloat(&s.draft.Latitude, f, value)
	case FieldLongitude:
		return assignFloat(&s.draft.Longitude, f, value)
	case FieldLastSeen:
		switch v := value.(type) {
		case time.Time:
			s.draft.LastSeen = &v
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fmt.Errorf("field %s: %w", f, err)
			}
			s.draft.LastSeen = &t
		case nil:
			s.draft.LastSeen = nil
		default:
			return fmt.Errorf("field %s: want timestamp, got %T", f, value)
		}
	case FieldNotes:
		return assignString(&s.draft.Notes, f, value)
	case FieldContactName:
		return assignString(&s.draft.ContactName, f, value)
	case FieldContactPhone:
		return assignString(&s.draft.ContactPhone, f, value)
	case FieldContactCountry:
		return assignString(&s.draft.ContactCountry, f, value)
	default:
		return fmt.Errorf("unknown draft field %q", f)
	}
	return nil
}

func asString(f Field, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("field %s: want string, got %T", f, value)
	}
}

func assignString(dst *string, f Field, value any) error {
	v, err := asString(f, value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func assignFloat(dst **float64, f Field, value any) error {
	switch v := value.(type) {
	case float64:
		*dst = &v
	case int:
		fv := float64(v)
		*dst = &fv
	case string:
		fv, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("field %s: %w", f, err)
		}
		*dst = &fv
	case nil:
		*dst = nil
	default:
		return fmt.Errorf("field %s: want number, got %T", f, value)
	}
	return nil
}
