// Package middleware provides HTTP middleware for logging, rate limiting,
// and session token propagation.
package middleware

import (
	"context"
	"net/http"
)

// ContextKey is the type for context keys set by this package.
type ContextKey string

const (
	// SessionTokenKey is the context key for the raw session token.
	SessionTokenKey ContextKey = "session_token"
	// UserIDKey is the context key for the resolved user ID.
	UserIDKey ContextKey = "user_id"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// Session extracts the session token from the session cookie, falling back
// to the "session" query parameter for clients that cannot set cookies, and
// stores it in the request context. Requests without a token pass through
// anonymously.
func Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}
			if token == "" {
				token = r.URL.Query().Get("session")
			}
			if token != "" {
				r = r.WithContext(context.WithValue(r.Context(), SessionTokenKey, token))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionToken returns the session token from context, or "".
func GetSessionToken(ctx context.Context) string {
	if v, ok := ctx.Value(SessionTokenKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID stores a resolved user ID for downstream logging.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the resolved user ID from context, or "".
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
