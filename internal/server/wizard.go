package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/submit"
	"github.com/pawfound/sighting-wizard/internal/vision"
	"github.com/pawfound/sighting-wizard/internal/wizard"
)

// HandleWizardStart handles POST /wizard/sessions. Anonymous users get a
// session too; the user ID is attached when a bearer token was presented.
func (s *Server) HandleWizardStart(w http.ResponseWriter, r *http.Request) {
	var userID string
	if user := UserFromContext(r.Context()); user != nil {
		userID = user.ID
	}
	sess := s.engine.Start(userID)
	respondJSON(w, http.StatusCreated, s.wizardState(sess))
}

// HandleWizardState handles GET /wizard/sessions/{sessionID}.
func (s *Server) HandleWizardState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.wizardState(sess))
}

// HandleWizardUpdateField handles POST /wizard/sessions/{sessionID}/fields.
// The body is {"field": "...", "value": ...}; values are coerced per field.
func (s *Server) HandleWizardUpdateField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Field == "" {
		respondError(w, http.StatusBadRequest, "field and value are required")
		return
	}

	if err := sess.Update(draft.Field(req.Field), req.Value); err != nil {
		if errors.Is(err, wizard.ErrBusy) {
			respondError(w, http.StatusConflict, "an operation is in progress")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.wizardState(sess))
}

// HandleWizardPhotoUpload handles POST /wizard/sessions/{sessionID}/photo.
// The photo arrives as multipart form data, is checked against the type and
// size limits, and is staged on local disk until submission uploads it to
// object storage.
func (s *Server) HandleWizardPhotoUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, vision.MaxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(vision.MaxPhotoBytes); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "photo too large")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := vision.CheckPhoto(contentType, header.Size); err != nil {
		s.respondPhotoFailure(w, err)
		return
	}

	reader, err := vision.CheckPhotoMagic(file, contentType)
	if err != nil {
		s.respondPhotoFailure(w, err)
		return
	}

	path := filepath.Join(s.config.DataDir, uuid.New().String()+photoExt(contentType))
	dst, err := os.Create(path)
	if err != nil {
		log.Printf("ERROR: create photo file: %v", err)
		respondError(w, http.StatusInternalServerError, "could not store photo")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, reader); err != nil {
		os.Remove(path)
		log.Printf("ERROR: write photo file: %v", err)
		respondError(w, http.StatusInternalServerError, "could not store photo")
		return
	}

	if err := sess.Update(draft.FieldPhotoLocalPath, path); err != nil {
		os.Remove(path)
		if errors.Is(err, wizard.ErrBusy) {
			respondError(w, http.StatusConflict, "an operation is in progress")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, s.wizardState(sess))
}

func (s *Server) respondPhotoFailure(w http.ResponseWriter, err error) {
	if f, ok := vision.AsFailure(err); ok {
		status := http.StatusBadRequest
		if f.Reason == vision.MaxFileSize {
			status = http.StatusRequestEntityTooLarge
		}
		respondJSON(w, status, map[string]string{
			"error":  f.Error(),
			"reason": string(f.Reason),
		})
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

// HandleWizardAdvance handles POST /wizard/sessions/{sessionID}/advance.
// Validation failures return 422 with per-field messages; leaving the photo
// step may include an analysis notice in the state.
func (s *Server) HandleWizardAdvance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}

	res, err := sess.Advance(r.Context())
	if err != nil {
		s.respondWizardError(w, err)
		return
	}

	state := s.wizardState(sess)
	if res.Notice != "" {
		state["notice"] = res.Notice
	}
	respondJSON(w, http.StatusOK, state)
}

// HandleWizardBack handles POST /wizard/sessions/{sessionID}/back.
func (s *Server) HandleWizardBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}
	if _, err := sess.Back(); err != nil {
		s.respondWizardError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.wizardState(sess))
}

// HandleWizardReset handles POST /wizard/sessions/{sessionID}/reset.
func (s *Server) HandleWizardReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}
	sess.Reset()
	respondJSON(w, http.StatusOK, s.wizardState(sess))
}

// HandleWizardSubmit handles POST /wizard/sessions/{sessionID}/submit.
func (s *Server) HandleWizardSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wizardSession(w, r)
	if !ok {
		return
	}

	if user := UserFromContext(r.Context()); user != nil {
		if !s.rl.AllowUserSubmit(user.ID) {
			respondError(w, http.StatusTooManyRequests, "submission limit reached")
			return
		}
	}

	id, err := sess.Submit(r.Context())
	if err != nil {
		s.respondWizardError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"sighting_id": id,
		"step":        string(sess.Step()),
	})
}

// wizardSession resolves the session from the URL and enforces ownership:
// a session started with a signed-in user is only visible to that user.
func (s *Server) wizardSession(w http.ResponseWriter, r *http.Request) (*wizard.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.engine.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if sess.UserID != "" {
		user := UserFromContext(r.Context())
		if user == nil || user.ID != sess.UserID {
			respondError(w, http.StatusForbidden, "session belongs to another user")
			return nil, false
		}
	}
	return sess, true
}

func (s *Server) respondWizardError(w http.ResponseWriter, err error) {
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		respondFieldErrors(w, string(verr.Step), verr.Fields)
		return
	}
	var serr *submit.Error
	if errors.As(err, &serr) {
		respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":  serr.Message,
			"reason": string(serr.Kind),
		})
		return
	}
	switch {
	case errors.Is(err, wizard.ErrBusy):
		respondError(w, http.StatusConflict, "an operation is in progress")
	case errors.Is(err, wizard.ErrNotAtSubmit):
		respondError(w, http.StatusConflict, "not at the submit step")
	case errors.Is(err, wizard.ErrMustSubmit):
		respondError(w, http.StatusConflict, "finish the report via submit")
	case errors.Is(err, wizard.ErrComplete):
		respondError(w, http.StatusConflict, "report already completed")
	default:
		log.Printf("ERROR: wizard operation: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// wizardState builds the JSON view of a session the mobile client renders.
func (s *Server) wizardState(sess *wizard.Session) map[string]any {
	d := sess.Draft()

	fields := map[string]any{}
	put := func(f draft.Field, v string) {
		if v != "" {
			fields[string(f)] = v
		}
	}
	put(draft.FieldReportKind, string(d.Kind))
	put(draft.FieldLinkedPetID, d.LinkedPetID)
	put(draft.FieldLinkedSightingID, d.LinkedSightingID)
	put(draft.FieldPetName, d.PetName)
	put(draft.FieldSpecies, d.Species)
	put(draft.FieldBreed, d.Breed)
	put(draft.FieldColors, d.Colors)
	put(draft.FieldGender, d.Gender)
	put(draft.FieldAge, d.Age)
	put(draft.FieldSize, string(d.Size))
	put(draft.FieldFeatures, d.Features)
	put(draft.FieldCollarPresence, string(d.CollarPresence))
	put(draft.FieldCollarDescription, d.CollarDescription)
	put(draft.FieldBehavior, string(d.Behavior))
	put(draft.FieldLocationText, d.LocationText)
	put(draft.FieldNotes, d.Notes)
	put(draft.FieldContactName, d.ContactName)
	put(draft.FieldContactPhone, d.ContactPhone)
	put(draft.FieldContactCountry, d.ContactCountry)
	if d.HasCoordinates() {
		fields[string(draft.FieldLatitude)] = *d.Latitude
		fields[string(draft.FieldLongitude)] = *d.Longitude
	}
	if d.LastSeen != nil {
		fields[string(draft.FieldLastSeen)] = d.LastSeen.Format(time.RFC3339)
	}
	if d.HasPhoto() {
		fields["photo"] = filepath.Base(d.PhotoURL())
	}

	aiFields := []string{}
	for _, f := range []draft.Field{
		draft.FieldSpecies, draft.FieldBreed, draft.FieldColors,
		draft.FieldGender, draft.FieldSize, draft.FieldFeatures,
		draft.FieldCollarDescription,
	} {
		if sess.AIAttributed(f) {
			aiFields = append(aiFields, string(f))
		}
	}

	return map[string]any{
		"session_id":   sess.ID,
		"step":         string(sess.Step()),
		"fields":       fields,
		"ai_suggested": aiFields,
	}
}

func photoExt(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "png") {
		return ".png"
	}
	return ".jpg"
}
