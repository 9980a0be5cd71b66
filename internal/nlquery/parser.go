// Package nlquery turns free-form assistant input into structured analysis requests.
package nlquery

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultWindowMinutes applies when the input names no duration.
const DefaultWindowMinutes = 30

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(min|minutes|hour|hours|h)`)

// Request is a structured analysis request: a keyword filter plus a relative window.
type Request struct {
	Keywords          string `json:"keywords"`
	TimeWindowMinutes int    `json:"time_window_minutes"`
}

// Parse extracts the first "<n><unit>" duration from raw. Keywords stay the raw text,
// time phrase included.
func Parse(raw string) Request {
	return Request{Keywords: raw, TimeWindowMinutes: windowMinutes(raw)}
}

// windowMinutes reports the duration as written. Out-of-range values are left to the
// analysis engine to reject.
func windowMinutes(raw string) int {
	m := durationPattern.FindStringSubmatch(raw)
	if m == nil {
		return DefaultWindowMinutes
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Digit runs too long for int.
		return math.MaxInt
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "h") {
		if n > math.MaxInt/60 {
			return math.MaxInt
		}
		n *= 60
	}
	return n
}

// Describe renders the user-visible turn text for a request.
func Describe(req Request) string {
	if req.Keywords == "" {
		return fmt.Sprintf("Analyze logs from last %d minutes", req.TimeWindowMinutes)
	}
	return fmt.Sprintf(`Analyze logs with keywords: "%s" from last %d minutes`, req.Keywords, req.TimeWindowMinutes)
}
