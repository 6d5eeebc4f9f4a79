package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pawfound/sighting-wizard/internal/chat"
)

// HandleChatStart handles POST /chat/conversations.
func (s *Server) HandleChatStart(w http.ResponseWriter, r *http.Request) {
	var userID string
	if user := UserFromContext(r.Context()); user != nil {
		userID = user.ID
	}
	conv := s.chats.Start(userID)
	respondJSON(w, http.StatusCreated, map[string]any{
		"conversation_id": conv.ID,
		"message":         "Hi! Tell me about the pet you've lost or found and I'll help you file a report.",
	})
}

// HandleChatState handles GET /chat/conversations/{conversationID}.
func (s *Server) HandleChatState(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.chatConversation(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"turns":           conv.Turns(),
		"flagged":         conv.Flagged(),
	})
}

// HandleChatTurn handles POST /chat/conversations/{conversationID}/turns.
func (s *Server) HandleChatTurn(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.chatConversation(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.chats.Turn(r.Context(), conv.ID, req.Text)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	body := map[string]any{
		"message": res.Message,
		"done":    res.Done,
		"flagged": res.Flagged,
	}
	if res.RecordID != "" {
		body["sighting_id"] = res.RecordID
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) chatConversation(w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	id := chi.URLParam(r, "conversationID")
	conv, ok := s.chats.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if conv.UserID != "" {
		user := UserFromContext(r.Context())
		if user == nil || user.ID != conv.UserID {
			respondError(w, http.StatusForbidden, "conversation belongs to another user")
			return nil, false
		}
	}
	return conv, true
}
