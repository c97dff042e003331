package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/internal/calendar"
	"github.com/voicecal/voice-scheduler/internal/identity"
	"github.com/voicecal/voice-scheduler/internal/middleware"
	"github.com/voicecal/voice-scheduler/internal/store"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

// AuthHandler drives the Google OAuth flow and session lifecycle.
type AuthHandler struct {
	oauth       *calendar.OAuth
	sessions    *store.SessionStore
	users       *store.UserStore
	credentials *store.CredentialStore
	resolver    *identity.Resolver
	sessionTTL  time.Duration
	logger      *logger.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(
	oauth *calendar.OAuth,
	sessions *store.SessionStore,
	users *store.UserStore,
	credentials *store.CredentialStore,
	resolver *identity.Resolver,
	sessionTTL time.Duration,
	log *logger.Logger,
) *AuthHandler {
	return &AuthHandler{
		oauth:       oauth,
		sessions:    sessions,
		users:       users,
		credentials: credentials,
		resolver:    resolver,
		sessionTTL:  sessionTTL,
		logger:      log,
	}
}

// Login handles GET /auth/login. It reuses the caller's session if one
// exists, otherwise mints an anonymous session, and redirects to Google's
// consent page with the session token as the OAuth state.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())
	if token == "" {
		sess, err := h.sessions.Create(r.Context(), "")
		if err != nil {
			h.logger.Error("failed to create session", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		token = sess.Token
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, h.oauth.AuthURL(token), http.StatusFound)
}

// Callback handles GET /auth/callback. It exchanges the authorization code,
// binds the session carried in state to the Google account, and stores the
// encrypted credential.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("oauth consent denied", zap.String("error", errParam))
		writeError(w, http.StatusBadRequest, "authorization denied")
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	sess, err := h.sessions.Resolve(r.Context(), state)
	if err != nil {
		h.logger.Error("failed to resolve oauth state", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if sess == nil {
		writeError(w, http.StatusBadRequest, "unknown or expired session")
		return
	}

	oauthToken, email, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to complete authorization")
		return
	}

	user, err := h.users.GetOrCreateByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to resolve user", zap.String("email", email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve user")
		return
	}
	if err := h.sessions.Attach(r.Context(), state, user.ID); err != nil {
		h.logger.Error("failed to attach session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to bind session")
		return
	}
	if err := h.credentials.Put(r.Context(), user.ID, oauthToken); err != nil {
		h.logger.Error("failed to store credential", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store credential")
		return
	}

	h.logger.Info("calendar connected",
		zap.String("user_id", user.ID),
		zap.String("email", email),
	)
	h.setSessionCookie(w, state)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Status handles GET /auth/status.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := h.resolver.Resolve(r.Context(), middleware.GetSessionToken(r.Context()))
	authenticated := id.Credential != nil
	message := "Not connected"
	email := ""
	if authenticated {
		message = "Connected as " + id.Email
		email = id.Email
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": authenticated,
		"email":         email,
		"message":       message,
	})
}

// Logout handles POST /auth/logout. The session is deleted; the stored
// calendar credential survives so reconnecting the same account needs no new
// consent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())
	if token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.logger.Warn("failed to delete session", zap.Error(err))
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Disconnect handles POST /auth/disconnect. It revokes the stored calendar
// credential but keeps the session alive.
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := h.resolver.Resolve(r.Context(), middleware.GetSessionToken(r.Context()))
	if id.Anonymous() {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.credentials.Revoke(r.Context(), id.UserID); err != nil {
		h.logger.Error("failed to revoke credential", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to disconnect calendar")
		return
	}
	h.logger.Info("calendar disconnected", zap.String("user_id", id.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
