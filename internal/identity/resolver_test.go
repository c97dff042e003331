package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/model"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

type fakeSessions struct {
	sessions map[string]*model.Session
	err      error
}

func (f *fakeSessions) Resolve(ctx context.Context, token string) (*model.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[token], nil
}

type fakeUsers struct {
	users map[string]*model.User
}

func (f *fakeUsers) Get(ctx context.Context, userID string) (*model.User, error) {
	return f.users[userID], nil
}

type fakeCredentials struct {
	tokens map[string]*oauth2.Token
	err    error
}

func (f *fakeCredentials) Get(ctx context.Context, userID string) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens[userID], nil
}

func newTestResolver() (*Resolver, *fakeSessions, *fakeCredentials) {
	sessions := &fakeSessions{sessions: map[string]*model.Session{
		"valid-token": {Token: "valid-token", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
		"anon-token":  {Token: "anon-token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	users := &fakeUsers{users: map[string]*model.User{
		"user-1": {ID: "user-1", Email: "alice@example.com"},
	}}
	creds := &fakeCredentials{tokens: map[string]*oauth2.Token{
		"user-1": {AccessToken: "tok-1"},
	}}
	return NewResolver(sessions, users, creds, logger.NewNop()), sessions, creds
}

func TestResolveMissingToken(t *testing.T) {
	r, _, _ := newTestResolver()

	id := r.Resolve(context.Background(), "")
	if !id.Anonymous() || id.Credential != nil {
		t.Fatalf("missing token resolved to %+v, want anonymous", id)
	}
}

func TestResolveUnknownTokenMatchesMissing(t *testing.T) {
	r, _, _ := newTestResolver()

	// Expired tokens resolve to nil at the store; unknown tokens resolve
	// to nil too. Both must look identical to a missing token.
	unknown := r.Resolve(context.Background(), "expired-or-unknown")
	missing := r.Resolve(context.Background(), "")
	if unknown != missing {
		t.Fatalf("unknown token %+v != missing token %+v", unknown, missing)
	}
}

func TestResolveAnonymousSession(t *testing.T) {
	r, _, _ := newTestResolver()

	id := r.Resolve(context.Background(), "anon-token")
	if !id.Anonymous() {
		t.Fatalf("session without user resolved to %+v", id)
	}
}

func TestResolveBoundToken(t *testing.T) {
	r, _, _ := newTestResolver()

	id := r.Resolve(context.Background(), "valid-token")
	if id.UserID != "user-1" || id.Email != "alice@example.com" {
		t.Fatalf("id = %+v", id)
	}
	if id.Credential == nil || id.Credential.AccessToken != "tok-1" {
		t.Fatalf("credential = %+v", id.Credential)
	}
}

func TestResolveSeesCredentialRotation(t *testing.T) {
	r, _, creds := newTestResolver()

	before := r.Resolve(context.Background(), "valid-token")
	if before.Credential.AccessToken != "tok-1" {
		t.Fatalf("credential = %+v", before.Credential)
	}

	creds.tokens["user-1"] = &oauth2.Token{AccessToken: "tok-2"}

	after := r.Resolve(context.Background(), "valid-token")
	if after.Credential.AccessToken != "tok-2" {
		t.Fatalf("rotated credential not visible: %+v", after.Credential)
	}
}

func TestResolveCorruptCredential(t *testing.T) {
	r, _, creds := newTestResolver()
	creds.err = errors.New("corrupt credential")

	id := r.Resolve(context.Background(), "valid-token")
	if id.UserID != "user-1" {
		t.Fatalf("user lost on credential error: %+v", id)
	}
	if id.Credential != nil {
		t.Fatalf("corrupt credential surfaced: %+v", id.Credential)
	}
}

func TestResolveStoreFailureDegradesToAnonymous(t *testing.T) {
	r, sessions, _ := newTestResolver()
	sessions.err = errors.New("store down")

	id := r.Resolve(context.Background(), "valid-token")
	if !id.Anonymous() {
		t.Fatalf("store failure resolved to %+v, want anonymous", id)
	}
}
