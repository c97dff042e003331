// Package identity correlates opaque session tokens with durable user
// identities and their calendar credentials.
package identity

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/model"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

// SessionStore resolves session tokens. Expired and unknown tokens both
// resolve to nil.
type SessionStore interface {
	Resolve(ctx context.Context, token string) (*model.Session, error)
}

// UserStore looks up durable user records.
type UserStore interface {
	Get(ctx context.Context, userID string) (*model.User, error)
}

// CredentialStore looks up per-user calendar credentials.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*oauth2.Token, error)
}

// Identity is the outcome of resolving a connection's session token.
// All fields are zero for anonymous connections. A resolved user without a
// Credential is authenticated but has not connected a calendar.
type Identity struct {
	UserID     string
	Email      string
	Credential *oauth2.Token
}

// Anonymous reports whether no user identity was resolved.
func (id Identity) Anonymous() bool {
	return id.UserID == ""
}

// Resolver maps session tokens to identities.
type Resolver struct {
	sessions    SessionStore
	users       UserStore
	credentials CredentialStore
	logger      *logger.Logger
}

// NewResolver creates a resolver over the given stores.
func NewResolver(sessions SessionStore, users UserStore, credentials CredentialStore, log *logger.Logger) *Resolver {
	return &Resolver{
		sessions:    sessions,
		users:       users,
		credentials: credentials,
		logger:      log,
	}
}

// Resolve maps a session token to an identity. A missing, unknown, or expired
// token resolves to anonymous rather than an error; a corrupt stored
// credential resolves to the user without a credential. Store failures also
// degrade to anonymous so the relay keeps working when the store is down.
func (r *Resolver) Resolve(ctx context.Context, token string) Identity {
	if token == "" {
		return Identity{}
	}

	sess, err := r.sessions.Resolve(ctx, token)
	if err != nil {
		r.logger.Warn("session resolution failed", zap.Error(err))
		return Identity{}
	}
	if sess == nil || sess.UserID == "" {
		return Identity{}
	}

	user, err := r.users.Get(ctx, sess.UserID)
	if err != nil {
		r.logger.Warn("user lookup failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return Identity{}
	}
	if user == nil {
		return Identity{}
	}

	id := Identity{UserID: user.ID, Email: user.Email}

	cred, err := r.credentials.Get(ctx, user.ID)
	if err != nil {
		// Corrupt or unreadable material means "authenticate again",
		// never a failed connection.
		r.logger.Warn("credential lookup failed, treating as unauthenticated",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return id
	}
	id.Credential = cred
	return id
}
