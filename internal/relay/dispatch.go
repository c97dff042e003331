package relay

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/calendar"
	"github.com/voicecal/voice-scheduler/pkg/logger"
	"github.com/voicecal/voice-scheduler/pkg/metrics"
)

// ToolCall is one function invocation requested by the assistant.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// ToolResult is the outcome of one ToolCall. Output is what goes back
// upstream as the function_call_output payload; Calendar and Draft are set
// only for calendar calls so the caller can record the created event.
type ToolResult struct {
	CallID   string
	Name     string
	Output   map[string]any
	Calendar *calendar.Result
	Draft    *calendar.Draft
}

// EventCreator creates a calendar event from an assistant draft.
type EventCreator interface {
	CreateEvent(ctx context.Context, draft calendar.Draft, credential *oauth2.Token) calendar.Result
}

// Dispatcher routes tool calls to their executors. Unknown tool names produce
// an error payload rather than failing the session.
type Dispatcher struct {
	executor EventCreator
	logger   *logger.Logger
}

// NewDispatcher creates a dispatcher over the given calendar executor.
func NewDispatcher(executor EventCreator, log *logger.Logger) *Dispatcher {
	return &Dispatcher{executor: executor, logger: log}
}

// Dispatch executes one tool call. Malformed argument JSON is treated as an
// empty argument set so the executor can apply its defaults.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall, credential *oauth2.Token) ToolResult {
	switch call.Name {
	case ToolAddCalendarEvent:
		return d.dispatchCalendar(ctx, call, credential)
	default:
		d.logger.Warn("unknown function call", zap.String("name", call.Name))
		metrics.RecordToolCall(call.Name, "unknown")
		return ToolResult{
			CallID: call.CallID,
			Name:   call.Name,
			Output: map[string]any{"error": "Unknown function: " + call.Name},
		}
	}
}

type calendarArgs struct {
	Summary      string `json:"summary"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Description  string `json:"description"`
	AttendeeName string `json:"attendee_name"`
}

func (d *Dispatcher) dispatchCalendar(ctx context.Context, call ToolCall, credential *oauth2.Token) ToolResult {
	var args calendarArgs
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			d.logger.Warn("malformed function call arguments",
				zap.String("call_id", call.CallID),
				zap.Error(err),
			)
			args = calendarArgs{}
		}
	}

	draft := calendar.Draft{
		Summary:      args.Summary,
		StartTime:    args.StartTime,
		EndTime:      args.EndTime,
		Description:  args.Description,
		AttendeeName: args.AttendeeName,
	}

	result := d.executor.CreateEvent(ctx, draft, credential)

	outcome := "success"
	if !result.Success {
		outcome = string(result.ErrKind)
	}
	metrics.RecordToolCall(call.Name, outcome)

	return ToolResult{
		CallID:   call.CallID,
		Name:     call.Name,
		Output:   resultOutput(result),
		Calendar: &result,
		Draft:    &draft,
	}
}

// resultOutput shapes the executor result into the payload sent back to the
// model as the function output.
func resultOutput(r calendar.Result) map[string]any {
	if !r.Success {
		return map[string]any{
			"success": false,
			"error":   r.ErrMessage,
		}
	}
	return map[string]any{
		"success":  true,
		"event_id": r.EventID,
		"summary":  r.Summary,
		"start":    r.Start,
		"end":      r.End,
		"link":     r.HTMLLink,
		"message":  r.Message,
	}
}
