package calendar

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleProvider creates events in the user's primary Google Calendar.
type GoogleProvider struct {
	conf *oauth2.Config
}

// NewGoogleProvider creates a provider using the given OAuth client
// configuration for token refresh.
func NewGoogleProvider(conf *oauth2.Config) *GoogleProvider {
	return &GoogleProvider{conf: conf}
}

// Insert performs exactly one Events.Insert call against the primary calendar.
// The token source refreshes expired access tokens transparently; a revoked
// grant surfaces as an API error.
func (p *GoogleProvider) Insert(ctx context.Context, credential *oauth2.Token, payload *EventPayload) (*ProviderEvent, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(p.conf.TokenSource(ctx, credential)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	event := &gcal.Event{
		Summary:     payload.Summary,
		Description: payload.Description,
		Start: &gcal.EventDateTime{
			DateTime: payload.Start.Format("2006-01-02T15:04:05-07:00"),
			TimeZone: payload.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: payload.End.Format("2006-01-02T15:04:05-07:00"),
			TimeZone: payload.TimeZone,
		},
	}

	created, err := svc.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	out := &ProviderEvent{
		ID:       created.Id,
		Summary:  created.Summary,
		HTMLLink: created.HtmlLink,
	}
	if created.Start != nil {
		out.Start = created.Start.DateTime
	}
	if created.End != nil {
		out.End = created.End.DateTime
	}
	return out, nil
}
