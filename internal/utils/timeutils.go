package utils

import (
	"fmt"
	"strings"
	"time"
)

// isoMillis matches what browsers produce with Date.toISOString().
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FormatISO renders t in UTC with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// ParseTimestamp accepts RFC3339 (with or without fractional seconds) and the naive
// ISO form emitted by Python's datetime.isoformat(), which is treated as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported format", value)
}
