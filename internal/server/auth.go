package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pawfound/sighting-wizard/internal/model"
)

const (
	sessionDuration   = 30 * 24 * time.Hour
	loginCodeDuration = 10 * time.Minute
)

// SessionMiddleware reads the bearer token, validates the session, and
// injects the user into the request context. Requests without a token pass
// through unauthenticated.
func (s *Server) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.store.GetSession(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if time.Now().UTC().After(sess.ExpiresAt) {
			_ = s.store.DeleteSession(r.Context(), sess.ID)
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.store.GetUser(r.Context(), sess.UserID)
		if err != nil || user.Banned {
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(withUser(r.Context(), user))
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects unauthenticated requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin returns 403 if the user is not an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin {
			respondError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// HandleMe returns the authenticated user.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

// HandleRequestCode handles POST /auth/request-code. It creates a one-time
// code and emails it. The response is identical whether or not the address
// is known, to avoid account enumeration.
func (s *Server) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	code := generateLoginCode()
	now := time.Now().UTC()
	lc := &model.LoginCode{
		Code:      code,
		Email:     email,
		ExpiresAt: now.Add(loginCodeDuration),
		CreatedAt: now,
	}
	if err := s.store.CreateLoginCode(r.Context(), lc); err != nil {
		log.Printf("ERROR: create login code: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.mailer.SendLoginCode(email, code); err != nil {
		log.Printf("ERROR: send login code: %v", err)
		respondError(w, http.StatusInternalServerError, "could not send code")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// HandleVerifyCode handles POST /auth/verify-code. A valid unexpired code
// signs the user in, creating the account on first use.
func (s *Server) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "email and code are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// The consume is atomic, so two concurrent verifications of the same
	// code cannot both mint a session.
	lc, err := s.store.ConsumeLoginCode(r.Context(), req.Code, email)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}
	if err != nil {
		log.Printf("ERROR: consume login code: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if time.Now().UTC().After(lc.ExpiresAt) {
		respondError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	user, err := s.getOrCreateUser(r.Context(), email, "")
	if err != nil {
		log.Printf("ERROR: get or create user: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user.Banned {
		respondError(w, http.StatusForbidden, "account disabled")
		return
	}

	sess, err := s.createSession(r.Context(), user.ID)
	if err != nil {
		log.Printf("ERROR: create session: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":      sess.ID,
		"expires_at": sess.ExpiresAt,
		"user_id":    user.ID,
	})
}

// HandleLogout handles POST /auth/logout.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		_ = s.store.DeleteSession(r.Context(), token)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// --- OAuth: Google ---

func (s *Server) googleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.config.GoogleClientID,
		ClientSecret: s.config.GoogleSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		RedirectURL: s.config.BaseURL + "/auth/google/callback",
		Scopes:      []string{"openid", "email", "profile"},
	}
}

// HandleGoogleLogin redirects to Google OAuth.
func (s *Server) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.config.GoogleClientID == "" {
		respondError(w, http.StatusNotImplemented, "google login not configured")
		return
	}
	state := generateRandomHex(32)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(s.config.BaseURL, "https"),
	})
	url := s.googleOAuthConfig().AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleGoogleCallback handles the Google OAuth callback and returns the
// bearer token the mobile client should store.
func (s *Server) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.validateOAuthState(r); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.googleOAuthConfig()
	token, err := cfg.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.Printf("ERROR: google oauth exchange: %v", err)
		respondError(w, http.StatusBadRequest, "oauth error")
		return
	}

	client := cfg.Client(r.Context(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		log.Printf("ERROR: google userinfo: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get user info")
		return
	}
	defer resp.Body.Close()

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		log.Printf("ERROR: decode google userinfo: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to parse user info")
		return
	}

	user, err := s.getOrCreateUser(r.Context(), info.Email, info.Name)
	if err != nil {
		log.Printf("ERROR: get or create user: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user.Banned {
		respondError(w, http.StatusForbidden, "account disabled")
		return
	}

	sess, err := s.createSession(r.Context(), user.ID)
	if err != nil {
		log.Printf("ERROR: create session: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":      sess.ID,
		"expires_at": sess.ExpiresAt,
		"user_id":    user.ID,
	})
}

// --- Helpers ---

func (s *Server) validateOAuthState(r *http.Request) error {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		return fmt.Errorf("missing OAuth state cookie")
	}
	stateParam := r.URL.Query().Get("state")
	if stateParam != stateCookie.Value {
		return fmt.Errorf("OAuth state mismatch")
	}
	return nil
}

func (s *Server) getOrCreateUser(ctx context.Context, email, name string) (*model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	user = &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		IsAdmin:   false,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Server) createSession(ctx context.Context, userID string) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(sessionDuration),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// generateLoginCode returns a 6-digit numeric code.
func generateLoginCode() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000)
}
