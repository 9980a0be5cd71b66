package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, ms := range []int{50, 10, 40, 20, 30} {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	if tracker.Count() != 5 {
		t.Fatalf("expected count 5, got %d", tracker.Count())
	}
	if p95 := tracker.Percentile(95); p95 < 40*time.Millisecond {
		t.Fatalf("expected p95 >= 40ms, got %v", p95)
	}
	if min := tracker.Percentile(0); min != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", min)
	}
	if max := tracker.Percentile(100); max != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", max)
	}
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count())
	}
	if total := tracker.Observe(time.Millisecond); total != 11 {
		t.Fatalf("expected running total 11, got %d", total)
	}
	if tracker.Count() != 3 {
		t.Fatalf("retained window must stay at 3, got %d", tracker.Count())
	}
	tracker = NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	// Only 7, 8, 9 survive.
	if min := tracker.Percentile(0); min != 7*time.Millisecond {
		t.Fatalf("expected oldest retained sample 7ms, got %v", min)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	if got := NewLatencyTracker(0).Percentile(95); got != 0 {
		t.Fatalf("expected zero percentile, got %v", got)
	}
}
