package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawfound/sighting-wizard/internal/chat"
	"github.com/pawfound/sighting-wizard/internal/model"
)

// HandleFlaggedLogs handles GET /admin/logs/flagged: chat transcripts that
// were terminated for abuse, for moderator review.
func (s *Server) HandleFlaggedLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListFlaggedConversationLogs(r.Context())
	if err != nil {
		log.Printf("ERROR: list flagged logs: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logViews(logs)})
}

// HandleUserLogs handles GET /admin/users/{userID}/logs.
func (s *Server) HandleUserLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListConversationLogsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		log.Printf("ERROR: list user logs: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logViews(logs)})
}

// HandleBanUser handles POST /admin/users/{userID}/ban. Banned users keep
// their data but can no longer authenticate.
func (s *Server) HandleBanUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("ERROR: get user: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.store.BanUser(r.Context(), userID); err != nil {
		log.Printf("ERROR: ban user: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "banned"})
}

func logViews(logs []*model.ConversationLog) []map[string]any {
	views := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		var turns []chat.Turn
		if err := json.Unmarshal([]byte(l.Transcript), &turns); err != nil {
			turns = nil
		}
		views = append(views, map[string]any{
			"id":            l.ID,
			"user_id":       l.UserID,
			"sighting_id":   l.SightingID,
			"turns":         turns,
			"offense_count": l.OffenseCount,
			"flagged":       l.Flagged,
			"created_at":    l.CreatedAt,
		})
	}
	return views
}
