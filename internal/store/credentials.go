package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/secret"
)

const credentialsBucket = "credentials"

// ErrCredentialCorrupt indicates stored credential material that cannot be
// decrypted or decoded. Callers treat it as "authenticate again".
var ErrCredentialCorrupt = errors.New("store: corrupt credential")

// CredentialStore holds per-user OAuth tokens, encrypted at rest. Concurrent
// reads are safe; writes go through a single KV put (last-writer-wins).
type CredentialStore struct {
	client *Client
	kv     jetstream.KeyValue
	cipher *secret.Cipher
}

// NewCredentialStore ensures the credentials bucket exists.
func NewCredentialStore(ctx context.Context, client *Client, cipher *secret.Cipher) (*CredentialStore, error) {
	kv, err := client.ensureBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      credentialsBucket,
		Description: "Encrypted per-user calendar credentials",
	})
	if err != nil {
		return nil, err
	}
	return &CredentialStore{client: client, kv: kv, cipher: cipher}, nil
}

// Get returns the stored token for a user, nil if none is stored, or
// ErrCredentialCorrupt if the material cannot be decrypted.
func (s *CredentialStore) Get(ctx context.Context, userID string) (*oauth2.Token, error) {
	entry, err := s.kv.Get(ctx, userID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	plaintext, err := s.cipher.Decrypt(string(entry.Value()))
	if err != nil {
		return nil, ErrCredentialCorrupt
	}

	var token oauth2.Token
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, ErrCredentialCorrupt
	}
	return &token, nil
}

// Put stores a token for a user, replacing any previous credential.
func (s *CredentialStore) Put(ctx context.Context, userID string, token *oauth2.Token) error {
	plaintext, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	encrypted, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	if _, err := s.kv.Put(ctx, userID, []byte(encrypted)); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Revoke removes the stored credential for a user.
func (s *CredentialStore) Revoke(ctx context.Context, userID string) error {
	err := s.kv.Delete(ctx, userID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
