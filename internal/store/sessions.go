package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/voicecal/voice-scheduler/internal/model"
)

const sessionsBucket = "sessions"

// SessionStore maps opaque session tokens to user identities. Expired entries
// are deleted lazily on resolution.
type SessionStore struct {
	client *Client
	kv     jetstream.KeyValue
	ttl    time.Duration
}

// NewSessionStore ensures the sessions bucket exists.
func NewSessionStore(ctx context.Context, client *Client, ttl time.Duration) (*SessionStore, error) {
	kv, err := client.ensureBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      sessionsBucket,
		Description: "Session token bindings",
	})
	if err != nil {
		return nil, err
	}
	return &SessionStore{client: client, kv: kv, ttl: ttl}, nil
}

// generateToken returns a secure random session token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create issues a new session, optionally bound to a user. An empty userID
// creates an anonymous session awaiting OAuth completion.
func (s *SessionStore) Create(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &model.Session{
		Token:      token,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		LastUsedAt: now,
	}
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Resolve returns the session for a token. Unknown and expired tokens both
// resolve to nil; expired entries are deleted on the way out.
func (s *SessionStore) Resolve(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	entry, err := s.kv.Get(ctx, token)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(entry.Value(), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if sess.Expired(time.Now().UTC()) {
		_ = s.kv.Delete(ctx, token)
		return nil, nil
	}

	sess.LastUsedAt = time.Now().UTC()
	_ = s.put(ctx, &sess)
	return &sess, nil
}

// Attach binds an existing session to a user identity.
func (s *SessionStore) Attach(ctx context.Context, token, userID string) error {
	sess, err := s.Resolve(ctx, token)
	if err != nil {
		return err
	}
	if sess == nil {
		return errors.New("session not found")
	}
	sess.UserID = userID
	return s.put(ctx, sess)
}

// Delete removes a session (logout).
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	err := s.kv.Delete(ctx, token)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *SessionStore) put(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if _, err := s.kv.Put(ctx, sess.Token, data); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
