package timezone

import (
	"testing"
	"time"

	"github.com/voicecal/voice-scheduler/pkg/logger"
)

func newKolkata(t *testing.T) *Normalizer {
	t.Helper()
	n := New("Asia/Kolkata", logger.NewNop())
	if n.Name() != "Asia/Kolkata" {
		t.Fatalf("zone = %q, want Asia/Kolkata", n.Name())
	}
	return n
}

func TestNormalizeNaiveUsesConfiguredZone(t *testing.T) {
	n := newKolkata(t)

	got, err := n.Normalize("2026-01-15T17:00:00")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	// 17:00 IST is 11:30 UTC (UTC+5:30).
	want := time.Date(2026, 1, 15, 11, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("instant = %v, want %v", got.UTC(), want)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	n := newKolkata(t)

	// The wall-clock rendering in the configured zone must equal the input.
	inputs := []string{
		"2026-01-15T17:00:00",
		"2026-03-01T00:00:00",
		"2025-12-31T23:59:59",
		"2026-07-04T09:15:00",
	}
	for _, raw := range inputs {
		got, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", raw, err)
		}
		if rendered := got.In(n.Location()).Format("2006-01-02T15:04:05"); rendered != raw {
			t.Errorf("round trip of %q = %q", raw, rendered)
		}
	}
}

func TestNormalizeExplicitOffsetIgnoresZone(t *testing.T) {
	n := newKolkata(t)

	cases := map[string]time.Time{
		"2026-01-15T12:00:00Z":      time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		"2026-01-15T12:00:00+00:00": time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		"2026-01-15T07:00:00-05:00": time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		"2026-01-15T17:30:00+05:30": time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", raw, err)
		}
		if !got.Equal(want) {
			t.Errorf("Normalize(%q) = %v, want %v", raw, got.UTC(), want)
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := newKolkata(t)

	for _, raw := range []string{"", "   ", "tomorrow at 5", "15/01/2026", "not-a-time"} {
		if _, err := n.Normalize(raw); err == nil {
			t.Errorf("Normalize(%q) succeeded, want error", raw)
		}
	}
}

func TestNormalizeOrFallback(t *testing.T) {
	n := newKolkata(t)
	fallback := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	got, degraded := n.NormalizeOr("garbage", fallback)
	if !degraded {
		t.Fatal("expected degraded result for unparsable input")
	}
	if !got.Equal(fallback) {
		t.Fatalf("fallback = %v, want %v", got, fallback)
	}

	got, degraded = n.NormalizeOr("2026-01-15T17:00:00", fallback)
	if degraded {
		t.Fatal("unexpected degradation for valid input")
	}
	if got.Equal(fallback) {
		t.Fatal("valid input returned fallback")
	}
}

func TestInvalidZoneDegradesToUTC(t *testing.T) {
	n := New("Not/AZone", logger.NewNop())
	if n.Name() != "UTC" {
		t.Fatalf("zone = %q, want UTC", n.Name())
	}

	got, err := n.Normalize("2026-01-15T17:00:00")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("instant = %v, want %v", got.UTC(), want)
	}
}

func TestDateOnlyInput(t *testing.T) {
	n := newKolkata(t)

	got, err := n.Normalize("2026-01-15")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rendered := got.In(n.Location()).Format("2006-01-02"); rendered != "2026-01-15" {
		t.Fatalf("date = %q", rendered)
	}
}
