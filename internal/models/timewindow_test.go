package models

import (
	"errors"
	"testing"
	"time"
)

func TestApplyPreset(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := ApplyPreset(now, 15)
	if !w.End.Equal(now) {
		t.Fatalf("expected end %v, got %v", now, w.End)
	}
	if w.End.Sub(w.Start) != 15*time.Minute {
		t.Fatalf("expected 15m span, got %v", w.End.Sub(w.Start))
	}
}

func TestDefaultTimeWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := DefaultTimeWindow(now)
	if w.End.Sub(w.Start) != time.Hour || !w.Valid() {
		t.Fatalf("unexpected default window: %v", w)
	}
}

func TestNarrowAround(t *testing.T) {
	center := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NarrowAround(center, 0)
	if !w.Start.Equal(center.Add(-5*time.Minute)) || !w.End.Equal(center.Add(5*time.Minute)) {
		t.Fatalf("unexpected drill window: %v", w)
	}

	wide := NarrowAround(center, time.Hour)
	if wide.End.Sub(wide.Start) != 2*time.Hour {
		t.Fatalf("expected 2h span, got %v", wide.End.Sub(wide.Start))
	}
}

func TestWithBoundAllowsInvertedWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := ApplyPreset(now, 60)

	inverted, err := w.WithBound(BoundStart, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inverted.Valid() {
		t.Fatalf("expected inverted window to be reported invalid")
	}
	if !inverted.End.Equal(w.End) {
		t.Fatalf("end bound must be untouched")
	}

	if _, err := w.WithBound(Bound("middle"), now); !errors.Is(err, ErrInvalidBound) {
		t.Fatalf("expected ErrInvalidBound, got %v", err)
	}
}

func TestParseBound(t *testing.T) {
	if b, err := ParseBound(" End "); err != nil || b != BoundEnd {
		t.Fatalf("expected end bound, got %q err=%v", b, err)
	}
	if _, err := ParseBound("later"); !errors.Is(err, ErrInvalidBound) {
		t.Fatalf("expected ErrInvalidBound, got %v", err)
	}
}

func TestBounds(t *testing.T) {
	w := TimeWindow{
		Start: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	start, end := w.Bounds()
	if start != "2024-05-01T11:00:00.000Z" || end != "2024-05-01T12:00:00.000Z" {
		t.Fatalf("unexpected bounds: %s %s", start, end)
	}
}
