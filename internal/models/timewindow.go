package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/log-console/internal/utils"
)

// DefaultDrillRadius is the half-width of the window produced by a chart drill-down.
const DefaultDrillRadius = 5 * time.Minute

// DefaultWindow is the span of a freshly created TimeWindow.
const DefaultWindow = time.Hour

// TimePreset is a one-click relative range offered next to the manual bound inputs.
type TimePreset struct {
	Label   string `json:"label"`
	Minutes int    `json:"minutes"`
}

// TimePresets lists the presets in display order.
var TimePresets = []TimePreset{
	{Label: "Last 15 min", Minutes: 15},
	{Label: "Last 1 hour", Minutes: 60},
	{Label: "Last 6 hours", Minutes: 360},
	{Label: "Last 24 hours", Minutes: 1440},
}

// ErrInvalidBound is returned for a bound name other than start or end.
var ErrInvalidBound = errors.New("time bound must be start or end")

// Bound names one edge of a TimeWindow.
type Bound string

const (
	BoundStart Bound = "start"
	BoundEnd   Bound = "end"
)

// ParseBound validates a bound name coming from the API.
func ParseBound(value string) (Bound, error) {
	switch Bound(strings.ToLower(strings.TrimSpace(value))) {
	case BoundStart:
		return BoundStart, nil
	case BoundEnd:
		return BoundEnd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBound, value)
	}
}

// TimeWindow is the active [Start, End) interval applied to every log query and
// aggregation. Values are replaced wholesale, never mutated in place.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultTimeWindow returns [now-1h, now).
func DefaultTimeWindow(now time.Time) TimeWindow {
	return TimeWindow{Start: now.Add(-DefaultWindow), End: now}
}

// ApplyPreset returns the window ending at now and spanning the given minutes.
func ApplyPreset(now time.Time, minutes int) TimeWindow {
	return TimeWindow{Start: now.Add(-time.Duration(minutes) * time.Minute), End: now}
}

// NarrowAround returns [center-radius, center+radius]. A non-positive radius means
// DefaultDrillRadius.
func NarrowAround(center time.Time, radius time.Duration) TimeWindow {
	if radius <= 0 {
		radius = DefaultDrillRadius
	}
	return TimeWindow{Start: center.Add(-radius), End: center.Add(radius)}
}

// WithBound replaces only the named bound. An inverted window is allowed through; the
// backend answers it with an empty result set.
func (w TimeWindow) WithBound(bound Bound, value time.Time) (TimeWindow, error) {
	switch bound {
	case BoundStart:
		w.Start = value
	case BoundEnd:
		w.End = value
	default:
		return w, fmt.Errorf("%w: %q", ErrInvalidBound, bound)
	}
	return w, nil
}

// Valid reports whether Start precedes End.
func (w TimeWindow) Valid() bool {
	return w.Start.Before(w.End)
}

// Bounds returns ISO-8601 bounds for downstream fetches.
func (w TimeWindow) Bounds() (start, end string) {
	return utils.FormatISO(w.Start), utils.FormatISO(w.End)
}

// Equal compares both bounds by instant.
func (w TimeWindow) Equal(other TimeWindow) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

func (w TimeWindow) String() string {
	start, end := w.Bounds()
	return start + "/" + end
}
