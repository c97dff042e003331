package calendar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/timezone"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

// countingProvider records calls and returns a canned confirmation.
type countingProvider struct {
	calls    int
	lastCred *oauth2.Token
	last     *EventPayload
	err      error
}

func (p *countingProvider) Insert(ctx context.Context, credential *oauth2.Token, payload *EventPayload) (*ProviderEvent, error) {
	p.calls++
	p.lastCred = credential
	p.last = payload
	if p.err != nil {
		return nil, p.err
	}
	return &ProviderEvent{
		ID:       "evt-123",
		Summary:  payload.Summary,
		Start:    payload.Start.Format(time.RFC3339),
		End:      payload.End.Format(time.RFC3339),
		HTMLLink: "https://calendar.google.com/event?eid=evt-123",
	}, nil
}

func newTestExecutor(t *testing.T, p Provider) *Executor {
	t.Helper()
	tz := timezone.New("Asia/Kolkata", logger.NewNop())
	e := NewExecutor(p, tz, logger.NewNop())
	e.now = func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func TestCreateEventWithoutCredential(t *testing.T) {
	p := &countingProvider{}
	e := newTestExecutor(t, p)

	res := e.CreateEvent(context.Background(), Draft{Summary: "Sync", StartTime: "2026-01-15T17:00:00"}, nil)
	if res.Success {
		t.Fatal("unauthenticated call succeeded")
	}
	if res.ErrKind != ErrNotAuthenticated {
		t.Fatalf("kind = %q, want %q", res.ErrKind, ErrNotAuthenticated)
	}
	if p.calls != 0 {
		t.Fatalf("provider called %d times, want 0", p.calls)
	}
	if !strings.Contains(res.ErrMessage, "not authenticated") {
		t.Fatalf("message = %q", res.ErrMessage)
	}
}

func TestCreateEventKolkataTimes(t *testing.T) {
	p := &countingProvider{}
	e := newTestExecutor(t, p)

	res := e.CreateEvent(context.Background(), Draft{
		Summary:   "Sync",
		StartTime: "2026-01-15T17:00:00",
	}, &oauth2.Token{AccessToken: "tok"})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}

	// 17:00 IST is 11:30 UTC; end defaults to exactly one hour later.
	wantStart := time.Date(2026, 1, 15, 11, 30, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)
	if !p.last.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", p.last.Start.UTC(), wantStart)
	}
	if !p.last.End.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", p.last.End.UTC(), wantEnd)
	}
	if res.Degraded {
		t.Error("valid times marked degraded")
	}
}

func TestCreateEventBadStartFallsBack(t *testing.T) {
	p := &countingProvider{}
	e := newTestExecutor(t, p)

	res := e.CreateEvent(context.Background(), Draft{
		Summary:   "Sync",
		StartTime: "next tuesday-ish",
	}, &oauth2.Token{AccessToken: "tok"})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if !res.Degraded {
		t.Fatal("fallback start not marked degraded")
	}

	// now + 1h, then end one hour after that.
	wantStart := time.Date(2026, 1, 10, 13, 0, 0, 0, time.UTC)
	if !p.last.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", p.last.Start.UTC(), wantStart)
	}
	if !p.last.End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("end = %v, want %v", p.last.End.UTC(), wantStart.Add(time.Hour))
	}
}

func TestCreateEventDefaultsSummary(t *testing.T) {
	p := &countingProvider{}
	e := newTestExecutor(t, p)

	res := e.CreateEvent(context.Background(), Draft{
		StartTime: "2026-01-15T17:00:00",
	}, &oauth2.Token{AccessToken: "tok"})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if p.last.Summary != "Meeting" {
		t.Fatalf("summary = %q, want Meeting", p.last.Summary)
	}
}

func TestCreateEventAttendeeDescription(t *testing.T) {
	p := &countingProvider{}
	e := newTestExecutor(t, p)

	e.CreateEvent(context.Background(), Draft{
		Summary:      "Sync",
		StartTime:    "2026-01-15T17:00:00",
		Description:  "Quarterly review",
		AttendeeName: "Priya",
	}, &oauth2.Token{AccessToken: "tok"})

	want := "Meeting with Priya\nQuarterly review"
	if p.last.Description != want {
		t.Fatalf("description = %q, want %q", p.last.Description, want)
	}
}

func TestCreateEventProviderFailure(t *testing.T) {
	p := &countingProvider{err: errors.New("googleapi: quota exceeded")}
	e := newTestExecutor(t, p)

	res := e.CreateEvent(context.Background(), Draft{
		Summary:   "Sync",
		StartTime: "2026-01-15T17:00:00",
	}, &oauth2.Token{AccessToken: "tok"})
	if res.Success {
		t.Fatal("provider failure reported success")
	}
	if res.ErrKind != ErrCreateFailed {
		t.Fatalf("kind = %q, want %q", res.ErrKind, ErrCreateFailed)
	}
	if !strings.Contains(res.ErrMessage, "quota exceeded") {
		t.Fatalf("message = %q", res.ErrMessage)
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1 (no retries)", p.calls)
	}
}

func TestCreateEventEchoesProviderTimes(t *testing.T) {
	p := &countingProvider{}
	e := newTestExecutor(t, p)

	res := e.CreateEvent(context.Background(), Draft{
		Summary:   "Sync",
		StartTime: "2026-01-15T17:00:00",
	}, &oauth2.Token{AccessToken: "tok"})

	// The result must carry the provider-confirmed values, not locally
	// recomputed ones.
	if res.Start != p.last.Start.Format(time.RFC3339) {
		t.Fatalf("start = %q not echoed from provider", res.Start)
	}
	if res.EventID != "evt-123" || res.HTMLLink == "" {
		t.Fatalf("result = %+v", res)
	}
}
