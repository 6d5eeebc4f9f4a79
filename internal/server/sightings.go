package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pawfound/sighting-wizard/internal/model"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// HandleSightingsList handles GET /sightings: the public recent-sightings
// feed, newest first.
func (s *Server) HandleSightingsList(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxFeedLimit)
		}
	}

	sightings, err := s.store.ListRecentSightings(r.Context(), limit)
	if err != nil {
		log.Printf("ERROR: list sightings: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sightings": s.sightingViews(r, sightings)})
}

// HandleSightingGet handles GET /sightings/{sightingID}.
func (s *Server) HandleSightingGet(w http.ResponseWriter, r *http.Request) {
	sg, err := s.store.GetSighting(r.Context(), chi.URLParam(r, "sightingID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "sighting not found")
			return
		}
		log.Printf("ERROR: get sighting: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, s.sightingView(r.Context(), sg))
}

// HandleMySightings handles GET /my/sightings.
func (s *Server) HandleMySightings(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	sightings, err := s.store.ListSightingsByReporter(r.Context(), user.ID)
	if err != nil {
		log.Printf("ERROR: list sightings by reporter: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sightings": s.sightingViews(r, sightings)})
}

// HandleSightingDelete handles DELETE /sightings/{sightingID}. Reporters may
// delete their own sightings; admins may delete any.
func (s *Server) HandleSightingDelete(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	sg, err := s.store.GetSighting(r.Context(), chi.URLParam(r, "sightingID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "sighting not found")
			return
		}
		log.Printf("ERROR: get sighting: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if sg.ReporterID != user.ID && !user.IsAdmin {
		respondError(w, http.StatusForbidden, "sighting belongs to another user")
		return
	}
	if err := s.store.DeleteSighting(r.Context(), sg.ID); err != nil {
		log.Printf("ERROR: delete sighting: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Pet claims ---

// HandleClaimCreate handles POST /sightings/{sightingID}/claims.
func (s *Server) HandleClaimCreate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	sg, err := s.store.GetSighting(r.Context(), chi.URLParam(r, "sightingID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "sighting not found")
			return
		}
		log.Printf("ERROR: get sighting: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var req struct {
		PetID   string `json:"pet_id"`
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.PetID != "" {
		pet, err := s.store.GetPet(r.Context(), req.PetID)
		if err != nil || pet.OwnerID != user.ID {
			respondError(w, http.StatusBadRequest, "pet_id must reference one of your pets")
			return
		}
	}

	claim := &model.PetClaim{
		ID:         uuid.New().String(),
		SightingID: sg.ID,
		PetID:      req.PetID,
		ClaimantID: user.ID,
		Message:    req.Message,
		Status:     model.ClaimPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreatePetClaim(r.Context(), claim); err != nil {
		log.Printf("ERROR: create claim: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusCreated, claimView(claim))
}

// HandleClaimsBySighting handles GET /sightings/{sightingID}/claims. Only
// the sighting's reporter (or an admin) can review claims on it.
func (s *Server) HandleClaimsBySighting(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	sg, err := s.store.GetSighting(r.Context(), chi.URLParam(r, "sightingID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "sighting not found")
			return
		}
		log.Printf("ERROR: get sighting: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if sg.ReporterID != user.ID && !user.IsAdmin {
		respondError(w, http.StatusForbidden, "sighting belongs to another user")
		return
	}

	claims, err := s.store.ListClaimsBySighting(r.Context(), sg.ID)
	if err != nil {
		log.Printf("ERROR: list claims: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"claims": claimViews(claims)})
}

// HandleMyClaims handles GET /my/claims.
func (s *Server) HandleMyClaims(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	claims, err := s.store.ListClaimsByClaimant(r.Context(), user.ID)
	if err != nil {
		log.Printf("ERROR: list claims by claimant: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"claims": claimViews(claims)})
}

// HandleClaimStatus handles POST /claims/{claimID}/status. Only the reporter
// of the claimed sighting (or an admin) may approve or reject.
func (s *Server) HandleClaimStatus(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	claim, err := s.store.GetPetClaim(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "claim not found")
			return
		}
		log.Printf("ERROR: get claim: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sg, err := s.store.GetSighting(r.Context(), claim.SightingID)
	if err != nil {
		log.Printf("ERROR: get claimed sighting: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if sg.ReporterID != user.ID && !user.IsAdmin {
		respondError(w, http.StatusForbidden, "claim belongs to another user's sighting")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := model.ClaimStatus(req.Status)
	if status != model.ClaimApproved && status != model.ClaimRejected {
		respondError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	if err := s.store.UpdatePetClaimStatus(r.Context(), claim.ID, status); err != nil {
		log.Printf("ERROR: update claim status: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	claim.Status = status

	if status == model.ClaimApproved {
		s.notifyClaimApproved(r.Context(), claim, sg)
	}

	respondJSON(w, http.StatusOK, claimView(claim))
}

// notifyClaimApproved emails the claimant that the reporter confirmed the
// sighting matches their pet. Best effort; the approval itself stands.
func (s *Server) notifyClaimApproved(ctx context.Context, claim *model.PetClaim, sg *model.Sighting) {
	claimant, err := s.store.GetUser(ctx, claim.ClaimantID)
	if err != nil {
		log.Printf("ERROR: load claimant for notification: %v", err)
		return
	}
	petName := "your pet"
	if claim.PetID != "" {
		if pet, err := s.store.GetPet(ctx, claim.PetID); err == nil && pet.Name != "" {
			petName = pet.Name
		}
	}
	if err := s.mailer.SendMatchNotification(claimant.Email, claimant.Name, petName, sg.LastSeenLocation); err != nil {
		log.Printf("ERROR: send match notification: %v", err)
	}
}

func claimView(c *model.PetClaim) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"sighting_id": c.SightingID,
		"pet_id":      c.PetID,
		"claimant_id": c.ClaimantID,
		"message":     c.Message,
		"status":      string(c.Status),
		"created_at":  c.CreatedAt,
	}
}

func claimViews(claims []*model.PetClaim) []map[string]any {
	views := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		views = append(views, claimView(c))
	}
	return views
}

// --- Sighting views ---

func (s *Server) sightingViews(r *http.Request, sightings []*model.Sighting) []map[string]any {
	views := make([]map[string]any, 0, len(sightings))
	for _, sg := range sightings {
		views = append(views, s.sightingView(r.Context(), sg))
	}
	return views
}

// sightingView builds the merged JSON view of a sighting. Descriptive
// fields missing on the sighting itself are filled from the linked pet
// profile, then from the linked prior sighting; the first non-empty value
// wins per field.
func (s *Server) sightingView(ctx context.Context, sg *model.Sighting) map[string]any {
	merged := *sg

	if sg.PetID != "" {
		if pet, err := s.store.GetPet(ctx, sg.PetID); err == nil {
			fillSightingFromPet(&merged, pet)
		}
	}
	if sg.LinkedSightingID != "" {
		if prior, err := s.store.GetSighting(ctx, sg.LinkedSightingID); err == nil {
			fillSightingFromSighting(&merged, prior)
		}
	}

	return map[string]any{
		"id":                 merged.ID,
		"name":               merged.Name,
		"species":            merged.Species,
		"breed":              merged.Breed,
		"colors":             merged.Colors,
		"gender":             merged.Gender,
		"features":           merged.Features,
		"size":               string(merged.Size),
		"collar_description": merged.CollarDescription,
		"photo_url":          merged.PhotoURL,
		"note":               merged.Note,
		"last_seen_location": merged.LastSeenLocation,
		"last_seen_lat":      merged.LastSeenLat,
		"last_seen_long":     merged.LastSeenLong,
		"last_seen_time":     merged.LastSeenTime,
		"pet_id":             merged.PetID,
		"linked_sighting_id": merged.LinkedSightingID,
		"reporter_name":      merged.ReporterName,
		"created_at":         merged.CreatedAt,
	}
}

func fillSightingFromPet(dst *model.Sighting, pet *model.Pet) {
	fillString(&dst.Name, pet.Name)
	fillString(&dst.Species, pet.Species)
	fillString(&dst.Breed, pet.Breed)
	fillString(&dst.Colors, pet.Colors)
	fillString(&dst.Gender, pet.Gender)
	fillString(&dst.Features, pet.Features)
	fillString(&dst.PhotoURL, pet.PhotoURL)
	if dst.Size == "" {
		dst.Size = pet.Size
	}
}

func fillSightingFromSighting(dst *model.Sighting, src *model.Sighting) {
	fillString(&dst.Name, src.Name)
	fillString(&dst.Species, src.Species)
	fillString(&dst.Breed, src.Breed)
	fillString(&dst.Colors, src.Colors)
	fillString(&dst.Gender, src.Gender)
	fillString(&dst.Features, src.Features)
	fillString(&dst.CollarDescription, src.CollarDescription)
	fillString(&dst.PhotoURL, src.PhotoURL)
	if dst.Size == "" {
		dst.Size = src.Size
	}
}

func fillString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}
