package relay

import (
	"context"
	"testing"

	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/calendar"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

type stubCreator struct {
	calls  int
	draft  calendar.Draft
	cred   *oauth2.Token
	result calendar.Result
}

func (s *stubCreator) CreateEvent(_ context.Context, draft calendar.Draft, cred *oauth2.Token) calendar.Result {
	s.calls++
	s.draft = draft
	s.cred = cred
	return s.result
}

func TestDispatchCalendarCall(t *testing.T) {
	creator := &stubCreator{result: calendar.Result{
		Success: true,
		EventID: "ev-1",
		Summary: "Team sync",
		Start:   "2026-01-15T17:00:00+05:30",
		End:     "2026-01-15T18:00:00+05:30",
		Message: "Event 'Team sync' created successfully!",
	}}
	d := NewDispatcher(creator, logger.NewNop())
	cred := &oauth2.Token{AccessToken: "tok"}

	res := d.Dispatch(context.Background(), ToolCall{
		CallID:    "call-1",
		Name:      ToolAddCalendarEvent,
		Arguments: `{"summary":"Team sync","start_time":"2026-01-15T17:00:00","attendee_name":"Priya"}`,
	}, cred)

	if creator.calls != 1 {
		t.Fatalf("expected 1 executor call, got %d", creator.calls)
	}
	if creator.cred != cred {
		t.Fatal("credential not passed through to executor")
	}
	if creator.draft.Summary != "Team sync" || creator.draft.StartTime != "2026-01-15T17:00:00" {
		t.Fatalf("unexpected draft: %+v", creator.draft)
	}
	if creator.draft.AttendeeName != "Priya" {
		t.Fatalf("attendee not extracted: %+v", creator.draft)
	}
	if res.CallID != "call-1" {
		t.Fatalf("call id not echoed: %q", res.CallID)
	}
	if res.Output["success"] != true {
		t.Fatalf("unexpected output: %v", res.Output)
	}
	if res.Output["event_id"] != "ev-1" {
		t.Fatalf("event id missing from output: %v", res.Output)
	}
	if res.Calendar == nil || !res.Calendar.Success {
		t.Fatal("calendar result not surfaced")
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	creator := &stubCreator{result: calendar.Result{Success: true, Summary: "Meeting"}}
	d := NewDispatcher(creator, logger.NewNop())

	d.Dispatch(context.Background(), ToolCall{
		CallID:    "call-2",
		Name:      ToolAddCalendarEvent,
		Arguments: `{not json`,
	}, nil)

	if creator.calls != 1 {
		t.Fatalf("malformed args should still reach the executor, got %d calls", creator.calls)
	}
	if creator.draft != (calendar.Draft{}) {
		t.Fatalf("expected empty draft for malformed args, got %+v", creator.draft)
	}
}

func TestDispatchFailureOutput(t *testing.T) {
	creator := &stubCreator{result: calendar.Result{
		ErrKind:    calendar.ErrNotAuthenticated,
		ErrMessage: "Google Calendar not authenticated. Please connect your calendar first.",
	}}
	d := NewDispatcher(creator, logger.NewNop())

	res := d.Dispatch(context.Background(), ToolCall{
		CallID:    "call-3",
		Name:      ToolAddCalendarEvent,
		Arguments: `{"summary":"x","start_time":"2026-01-15T17:00:00"}`,
	}, nil)

	if res.Output["success"] != false {
		t.Fatalf("expected failure output, got %v", res.Output)
	}
	if res.Output["error"] != "Google Calendar not authenticated. Please connect your calendar first." {
		t.Fatalf("unexpected error message: %v", res.Output["error"])
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	creator := &stubCreator{}
	d := NewDispatcher(creator, logger.NewNop())

	res := d.Dispatch(context.Background(), ToolCall{
		CallID: "call-4",
		Name:   "delete_all_events",
	}, nil)

	if creator.calls != 0 {
		t.Fatalf("unknown tool must not reach the executor, got %d calls", creator.calls)
	}
	if res.Output["error"] != "Unknown function: delete_all_events" {
		t.Fatalf("unexpected output: %v", res.Output)
	}
	if res.Calendar != nil {
		t.Fatal("unknown tool should carry no calendar result")
	}
}
