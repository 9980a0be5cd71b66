package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent durations and answers percentile queries.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	full    bool
	total   uint64
}

// NewLatencyTracker creates a tracker retaining up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, size)}
}

// Observe records a duration, overwriting the oldest sample once the window is full.
// It returns the number of durations observed so far, evicted ones included.
func (l *LatencyTracker) Observe(d time.Duration) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next = (l.next + 1) % len(l.samples)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	return l.total
}

// Percentile returns the p-th percentile (0-100), or zero without samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	window := append([]time.Duration(nil), l.window()...)
	l.mu.RUnlock()

	if len(window) == 0 {
		return 0
	}
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	switch {
	case p <= 0:
		return window[0]
	case p >= 100:
		return window[len(window)-1]
	}
	index := int((p / 100.0) * float64(len(window)-1))
	return window[index]
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.window())
}

func (l *LatencyTracker) window() []time.Duration {
	if l.full {
		return l.samples
	}
	return l.samples[:l.next]
}
