// Package timezone converts free-form ISO timestamp strings into unambiguous
// zoned instants. Zone-naive strings are interpreted as wall-clock time in the
// configured zone, matching what the assistant is instructed to emit.
package timezone

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/pkg/logger"
	"github.com/voicecal/voice-scheduler/pkg/metrics"
)

// DefaultEventDuration is the fixed policy for a missing end time.
const DefaultEventDuration = time.Hour

// layouts tried for zone-naive strings, most specific first.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// layouts tried for strings carrying an explicit offset.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02T15:04-07:00",
}

// ErrUnparsable is returned when no layout matches the input.
var ErrUnparsable = errors.New("timezone: unparsable timestamp")

// Normalizer resolves timestamp strings against one configured IANA zone.
type Normalizer struct {
	loc  *time.Location
	name string
	log  *logger.Logger
}

// New creates a Normalizer for the named IANA zone. An invalid zone name or a
// missing zone database degrades to UTC with a single startup warning rather
// than failing per call.
func New(name string, log *logger.Logger) *Normalizer {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("failed to load timezone, falling back to UTC",
			zap.String("timezone", name),
			zap.Error(err),
		)
		return &Normalizer{loc: time.UTC, name: "UTC", log: log}
	}
	log.Info("using timezone", zap.String("timezone", name))
	return &Normalizer{loc: loc, name: name, log: log}
}

// Location returns the resolved zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Name returns the resolved zone name ("UTC" after degradation).
func (n *Normalizer) Name() string {
	return n.name
}

// Now returns the current time in the configured zone.
func (n *Normalizer) Now() time.Time {
	return time.Now().In(n.loc)
}

// Normalize parses raw into an absolute instant. Strings with an explicit
// offset or "Z" suffix are taken as-is; zone-naive strings are interpreted as
// wall-clock time in the configured zone.
func (n *Normalizer) Normalize(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrUnparsable
	}

	if hasExplicitOffset(raw) {
		for _, layout := range absoluteLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return time.Time{}, ErrUnparsable
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparsable
}

// NormalizeOr parses raw, returning fallback when raw is absent or fails every
// parse attempt. The second return reports degradation; callers log it as a
// non-fatal event and never surface it to the end user.
func (n *Normalizer) NormalizeOr(raw string, fallback time.Time) (time.Time, bool) {
	t, err := n.Normalize(raw)
	if err != nil {
		metrics.TimeParseFallbacksTotal.Inc()
		return fallback, true
	}
	return t, false
}

// hasExplicitOffset reports whether raw carries its own UTC offset. A "-" in
// the date portion does not count; only a sign after the time portion or a
// trailing "Z" does.
func hasExplicitOffset(raw string) bool {
	if strings.HasSuffix(raw, "Z") || strings.HasSuffix(raw, "z") {
		return true
	}
	if len(raw) <= 10 {
		return false
	}
	rest := raw[10:]
	return strings.Contains(rest, "+") || strings.Contains(rest, "-")
}
