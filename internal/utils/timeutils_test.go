package utils

import (
	"testing"
	"time"
)

func TestFormatISO(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	if got := FormatISO(ts); got != "2024-03-01T09:30:00.000Z" {
		t.Fatalf("unexpected format: %s", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-01T09:30:00Z":       time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		"2024-03-01T09:30:00.250Z":   time.Date(2024, 3, 1, 9, 30, 0, 250_000_000, time.UTC),
		"2024-03-01T09:30:00.123456": time.Date(2024, 3, 1, 9, 30, 0, 123_456_000, time.UTC),
		"2024-03-01T09:30":           time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		"2024-03-01T11:30:00+02:00":  time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got, err := ParseTimestamp(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", input, want, got)
		}
	}

	if _, err := ParseTimestamp(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for garbage value")
	}
}
