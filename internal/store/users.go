package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/internal/model"
)

const usersBucket = "users"

// UserStore persists durable user identities keyed by id, with an email index
// so re-authentication of a known account resolves to the same identity.
type UserStore struct {
	client *Client
	kv     jetstream.KeyValue
}

// NewUserStore ensures the users bucket exists.
func NewUserStore(ctx context.Context, client *Client) (*UserStore, error) {
	kv, err := client.ensureBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      usersBucket,
		Description: "Durable user identities",
	})
	if err != nil {
		return nil, err
	}
	return &UserStore{client: client, kv: kv}, nil
}

// emailKey encodes an email address into the KV key charset.
func emailKey(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return "email." + base64.RawURLEncoding.EncodeToString([]byte(normalized))
}

// Get returns a user by id, or nil if unknown.
func (s *UserStore) Get(ctx context.Context, userID string) (*model.User, error) {
	entry, err := s.kv.Get(ctx, "id."+userID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(entry.Value(), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// GetOrCreateByEmail resolves the user for a stable external email address,
// creating one on first sight. Re-authenticating a known account updates the
// existing record instead of creating a duplicate identity.
func (s *UserStore) GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, errors.New("email is required")
	}

	idx := emailKey(email)
	if entry, err := s.kv.Get(ctx, idx); err == nil {
		user, err := s.Get(ctx, string(entry.Value()))
		if err != nil {
			return nil, err
		}
		if user != nil {
			user.LastLogin = time.Now().UTC()
			if err := s.put(ctx, user); err != nil {
				return nil, err
			}
			return user, nil
		}
	} else if !errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: now,
		LastLogin: now,
	}
	if err := s.put(ctx, user); err != nil {
		return nil, err
	}
	if _, err := s.kv.Put(ctx, idx, []byte(user.ID)); err != nil {
		return nil, fmt.Errorf("failed to index user email: %w", err)
	}

	s.client.logger.Info("new user created", zap.String("email", user.Email))
	return user, nil
}

func (s *UserStore) put(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if _, err := s.kv.Put(ctx, "id."+user.ID, data); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}
