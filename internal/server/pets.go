package server

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pawfound/sighting-wizard/internal/model"
	"github.com/pawfound/sighting-wizard/internal/phone"
)

type petRequest struct {
	Name     string `json:"name"`
	Species  string `json:"species"`
	Breed    string `json:"breed"`
	Colors   string `json:"colors"`
	Gender   string `json:"gender"`
	Age      string `json:"age"`
	Size     string `json:"size"`
	Features string `json:"features"`
	PhotoURL string `json:"photo_url"`
	Lost     bool   `json:"lost"`
}

func (req *petRequest) validate() map[string]string {
	errs := map[string]string{}
	if req.Name == "" {
		errs["name"] = "Name is required"
	}
	if req.Species == "" {
		errs["species"] = "Species is required"
	}
	if req.Size != "" {
		switch model.Size(req.Size) {
		case model.SizeSmall, model.SizeMedium, model.SizeLarge:
		default:
			errs["size"] = "Size must be small, medium or large"
		}
	}
	return errs
}

// HandlePetCreate handles POST /pets.
func (s *Server) HandlePetCreate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req petRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respondFieldErrors(w, "pet", errs)
		return
	}

	now := time.Now().UTC()
	pet := &model.Pet{
		ID:        uuid.New().String(),
		OwnerID:   user.ID,
		Name:      req.Name,
		Species:   req.Species,
		Breed:     req.Breed,
		Colors:    req.Colors,
		Gender:    req.Gender,
		Age:       req.Age,
		Size:      model.Size(req.Size),
		Features:  req.Features,
		PhotoURL:  req.PhotoURL,
		Lost:      req.Lost,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePet(r.Context(), pet); err != nil {
		log.Printf("ERROR: create pet: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusCreated, petView(pet))
}

// HandlePetsList handles GET /pets, listing the caller's pets.
func (s *Server) HandlePetsList(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	pets, err := s.store.ListPetsByOwner(r.Context(), user.ID)
	if err != nil {
		log.Printf("ERROR: list pets: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	views := make([]map[string]any, 0, len(pets))
	for _, p := range pets {
		views = append(views, petView(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"pets": views})
}

// HandlePetGet handles GET /pets/{petID}.
func (s *Server) HandlePetGet(w http.ResponseWriter, r *http.Request) {
	pet, ok := s.ownedPet(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, petView(pet))
}

// HandlePetUpdate handles PUT /pets/{petID}.
func (s *Server) HandlePetUpdate(w http.ResponseWriter, r *http.Request) {
	pet, ok := s.ownedPet(w, r)
	if !ok {
		return
	}

	var req petRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respondFieldErrors(w, "pet", errs)
		return
	}

	pet.Name = req.Name
	pet.Species = req.Species
	pet.Breed = req.Breed
	pet.Colors = req.Colors
	pet.Gender = req.Gender
	pet.Age = req.Age
	pet.Size = model.Size(req.Size)
	pet.Features = req.Features
	pet.PhotoURL = req.PhotoURL
	pet.Lost = req.Lost
	pet.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdatePet(r.Context(), pet); err != nil {
		log.Printf("ERROR: update pet: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, petView(pet))
}

// HandlePetDelete handles DELETE /pets/{petID}.
func (s *Server) HandlePetDelete(w http.ResponseWriter, r *http.Request) {
	pet, ok := s.ownedPet(w, r)
	if !ok {
		return
	}
	if err := s.store.DeletePet(r.Context(), pet.ID); err != nil {
		log.Printf("ERROR: delete pet: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandlePetSightings handles GET /pets/{petID}/sightings: the sighting
// thread linked to one of the caller's pets.
func (s *Server) HandlePetSightings(w http.ResponseWriter, r *http.Request) {
	pet, ok := s.ownedPet(w, r)
	if !ok {
		return
	}
	sightings, err := s.store.ListSightingsByPet(r.Context(), pet.ID)
	if err != nil {
		log.Printf("ERROR: list sightings by pet: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sightings": s.sightingViews(r, sightings)})
}

// ownedPet resolves {petID} and enforces that the caller owns it.
func (s *Server) ownedPet(w http.ResponseWriter, r *http.Request) (*model.Pet, bool) {
	user := UserFromContext(r.Context())
	pet, err := s.store.GetPet(r.Context(), chi.URLParam(r, "petID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "pet not found")
			return nil, false
		}
		log.Printf("ERROR: get pet: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if pet.OwnerID != user.ID {
		respondError(w, http.StatusForbidden, "pet belongs to another user")
		return nil, false
	}
	return pet, true
}

func petView(p *model.Pet) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"species":   p.Species,
		"breed":     p.Breed,
		"colors":    p.Colors,
		"gender":    p.Gender,
		"age":       p.Age,
		"size":      string(p.Size),
		"features":  p.Features,
		"photo_url": p.PhotoURL,
		"lost":      p.Lost,
	}
}

// --- Owner contact profile ---

// HandleOwnerUpsert handles PUT /owner.
func (s *Server) HandleOwnerUpsert(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req struct {
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		CountryCode string `json:"country_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	errs := map[string]string{}
	if req.Name == "" {
		errs["name"] = "Name is required"
	}
	if !phone.Valid(req.Phone, req.CountryCode) {
		errs["phone"] = "A valid phone number is required"
	}
	if len(errs) > 0 {
		respondFieldErrors(w, "owner", errs)
		return
	}

	owner := &model.Owner{
		UserID:      user.ID,
		Name:        req.Name,
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.UpsertOwner(r.Context(), owner); err != nil {
		log.Printf("ERROR: upsert owner: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":         owner.Name,
		"phone":        owner.Phone,
		"country_code": owner.CountryCode,
	})
}

// HandleOwnerGet handles GET /owner.
func (s *Server) HandleOwnerGet(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	owner, err := s.store.GetOwner(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "no contact profile yet")
			return
		}
		log.Printf("ERROR: get owner: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":         owner.Name,
		"phone":        owner.Phone,
		"country_code": owner.CountryCode,
	})
}
