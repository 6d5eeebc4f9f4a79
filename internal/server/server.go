package server

import (
	"encoding/json"
	"log"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawfound/sighting-wizard/internal/chat"
	"github.com/pawfound/sighting-wizard/internal/mail"
	"github.com/pawfound/sighting-wizard/internal/store"
	"github.com/pawfound/sighting-wizard/internal/submit"
	"github.com/pawfound/sighting-wizard/internal/wizard"
)

// Config holds server configuration.
type Config struct {
	ListenAddr     string
	DBPath         string
	DataDir        string // local scratch space for uploaded photos
	BaseURL        string
	SendGridKey    string
	FromEmail      string
	FromName       string
	GoogleClientID string
	GoogleSecret   string
	GeminiAPIKey   string
	GeminiModel    string
	EnrichPhotos   bool
}

// Server is the HTTP API for the sighting wizard backend. The mobile client
// drives the step wizard and the chat flow through it.
type Server struct {
	config   Config
	store    store.Store
	engine   *wizard.Engine
	chats    *chat.Controller
	pipeline *submit.Pipeline
	mailer   *mail.Mailer
	rl       *RateLimiter
	router   chi.Router
	logger   *slog.Logger
}

// NewServer creates a Server from the given config and collaborators.
func NewServer(cfg Config, s store.Store, engine *wizard.Engine, chats *chat.Controller, pipeline *submit.Pipeline, mailer *mail.Mailer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		config:   cfg,
		store:    s,
		engine:   engine,
		chats:    chats,
		pipeline: pipeline,
		mailer:   mailer,
		rl:       NewRateLimiter(DefaultRateLimiterConfig()),
		logger:   logger,
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware)
	r.Use(IPRateLimitMiddleware(s.rl, s.rl.config.GeneralRequestsPerMin))
	r.Use(s.SessionMiddleware)

	r.Get("/healthz", s.HandleHealth)

	// Auth.
	r.Post("/auth/request-code", s.HandleRequestCode)
	r.Post("/auth/verify-code", s.HandleVerifyCode)
	r.Get("/auth/google", s.HandleGoogleLogin)
	r.Get("/auth/google/callback", s.HandleGoogleCallback)
	r.Post("/auth/logout", s.HandleLogout)

	// Wizard sessions. Reporting is open to anonymous users; the session
	// middleware attaches the user when a bearer token is present.
	r.Route("/wizard/sessions", func(r chi.Router) {
		r.Post("/", s.HandleWizardStart)
		r.Get("/{sessionID}", s.HandleWizardState)
		r.Post("/{sessionID}/fields", s.HandleWizardUpdateField)
		r.Post("/{sessionID}/photo", s.HandleWizardPhotoUpload)
		r.Post("/{sessionID}/advance", s.HandleWizardAdvance)
		r.Post("/{sessionID}/back", s.HandleWizardBack)
		r.Post("/{sessionID}/reset", s.HandleWizardReset)
		r.With(SubmitRateLimitMiddleware(s.rl)).Post("/{sessionID}/submit", s.HandleWizardSubmit)
	})

	// Chat-driven reporting.
	r.Route("/chat/conversations", func(r chi.Router) {
		r.Post("/", s.HandleChatStart)
		r.Get("/{conversationID}", s.HandleChatState)
		r.With(SubmitRateLimitMiddleware(s.rl)).Post("/{conversationID}/turns", s.HandleChatTurn)
	})

	// Public sighting feed.
	r.Get("/sightings", s.HandleSightingsList)
	r.Get("/sightings/{sightingID}", s.HandleSightingGet)

	// Authenticated resources.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Get("/me", s.HandleMe)

		r.Post("/pets", s.HandlePetCreate)
		r.Get("/pets", s.HandlePetsList)
		r.Get("/pets/{petID}", s.HandlePetGet)
		r.Put("/pets/{petID}", s.HandlePetUpdate)
		r.Delete("/pets/{petID}", s.HandlePetDelete)
		r.Get("/pets/{petID}/sightings", s.HandlePetSightings)

		r.Put("/owner", s.HandleOwnerUpsert)
		r.Get("/owner", s.HandleOwnerGet)

		r.Get("/my/sightings", s.HandleMySightings)
		r.Delete("/sightings/{sightingID}", s.HandleSightingDelete)

		r.Post("/sightings/{sightingID}/claims", s.HandleClaimCreate)
		r.Get("/sightings/{sightingID}/claims", s.HandleClaimsBySighting)
		r.Get("/my/claims", s.HandleMyClaims)
		r.Post("/claims/{claimID}/status", s.HandleClaimStatus)
	})

	// Admin.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Use(RequireAdmin)

		r.Get("/admin/logs/flagged", s.HandleFlaggedLogs)
		r.Get("/admin/users/{userID}/logs", s.HandleUserLogs)
		r.Post("/admin/users/{userID}/ban", s.HandleBanUser)
	})

	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stop cleans up server resources.
func (s *Server) Stop() {
	s.rl.Stop()
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON writes v as a JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: encode response: %v", err)
	}
}

// respondError writes a JSON error body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFieldErrors writes a 422 with per-field validation messages.
func respondFieldErrors(w http.ResponseWriter, step string, fields map[string]string) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"step":   step,
		"fields": fields,
	})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
