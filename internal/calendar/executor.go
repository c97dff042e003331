// Package calendar creates calendar events on behalf of authenticated users.
package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/timezone"
	"github.com/voicecal/voice-scheduler/pkg/logger"
	"github.com/voicecal/voice-scheduler/pkg/metrics"
)

// ErrorKind classifies executor failures for machine consumption.
type ErrorKind string

const (
	// ErrNone marks a successful result.
	ErrNone ErrorKind = ""
	// ErrNotAuthenticated means no credential was supplied. Expected and
	// user-recoverable via re-auth.
	ErrNotAuthenticated ErrorKind = "not_authenticated"
	// ErrCreateFailed wraps any provider-side failure.
	ErrCreateFailed ErrorKind = "create_failed"
)

// Draft is a requested calendar event. Start and end are raw strings from the
// assistant and may be zone-naive.
type Draft struct {
	Summary      string
	StartTime    string
	EndTime      string
	Description  string
	AttendeeName string
}

// Result is the single outcome of one Draft. Start and End echo the
// provider-confirmed values on success.
type Result struct {
	Success  bool
	EventID  string
	Summary  string
	Start    string
	End      string
	HTMLLink string
	Message  string

	// Degraded is set when a start or end time fell back to a default.
	Degraded bool

	ErrKind    ErrorKind
	ErrMessage string
}

// EventPayload is the normalized request handed to a Provider.
type EventPayload struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// ProviderEvent is the provider's confirmation of a created event.
type ProviderEvent struct {
	ID       string
	Summary  string
	Start    string
	End      string
	HTMLLink string
}

// Provider performs the external calendar mutation.
type Provider interface {
	Insert(ctx context.Context, credential *oauth2.Token, payload *EventPayload) (*ProviderEvent, error)
}

// Executor turns Drafts into exactly one provider call each. It performs no
// retries: user-visible failure is preferred over silent duplication.
type Executor struct {
	provider Provider
	tz       *timezone.Normalizer
	logger   *logger.Logger
	now      func() time.Time
}

// NewExecutor creates an executor over the given provider and zone.
func NewExecutor(provider Provider, tz *timezone.Normalizer, log *logger.Logger) *Executor {
	return &Executor{
		provider: provider,
		tz:       tz,
		logger:   log,
		now:      time.Now,
	}
}

// CreateEvent creates one calendar event. A nil credential short-circuits to a
// not-authenticated result without touching the normalizer or the provider.
// Provider errors are converted to a failure Result, never propagated.
func (e *Executor) CreateEvent(ctx context.Context, draft Draft, credential *oauth2.Token) Result {
	if credential == nil {
		e.logger.Warn("calendar event creation failed: not authenticated")
		metrics.CalendarEventsTotal.WithLabelValues("not_authenticated").Inc()
		return Result{
			ErrKind:    ErrNotAuthenticated,
			ErrMessage: "Google Calendar not authenticated. Please connect your calendar first.",
		}
	}

	summary := draft.Summary
	if summary == "" {
		summary = "Meeting"
	}

	start, startDegraded := e.tz.NormalizeOr(draft.StartTime, e.now().Add(time.Hour))
	if startDegraded {
		e.logger.Warn("invalid start time, defaulting to 1 hour from now",
			zap.String("start_time", draft.StartTime),
		)
	}
	end, endDegraded := e.tz.NormalizeOr(draft.EndTime, start.Add(timezone.DefaultEventDuration))
	if endDegraded && draft.EndTime != "" {
		e.logger.Warn("invalid end time, defaulting to 1 hour after start",
			zap.String("end_time", draft.EndTime),
		)
	}

	description := draft.Description
	if draft.AttendeeName != "" {
		description = fmt.Sprintf("Meeting with %s", draft.AttendeeName)
		if draft.Description != "" {
			description += "\n" + draft.Description
		}
	}

	created, err := e.provider.Insert(ctx, credential, &EventPayload{
		Summary:     summary,
		Description: description,
		Start:       start,
		End:         end,
		TimeZone:    e.tz.Name(),
	})
	if err != nil {
		e.logger.Error("error creating calendar event", zap.Error(err))
		metrics.CalendarEventsTotal.WithLabelValues("error").Inc()
		return Result{
			Degraded:   startDegraded,
			ErrKind:    ErrCreateFailed,
			ErrMessage: fmt.Sprintf("Failed to create calendar event: %v", err),
		}
	}

	e.logger.Info("calendar event created",
		zap.String("event_id", created.ID),
		zap.String("summary", created.Summary),
	)
	metrics.CalendarEventsTotal.WithLabelValues("success").Inc()

	return Result{
		Success:  true,
		EventID:  created.ID,
		Summary:  created.Summary,
		Start:    created.Start,
		End:      created.End,
		HTMLLink: created.HTMLLink,
		Message:  fmt.Sprintf("Event '%s' created successfully!", summary),
		Degraded: startDegraded,
	}
}
