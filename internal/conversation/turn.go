package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrTurnNotFound is returned for an id the store never issued.
	ErrTurnNotFound = errors.New("conversation turn not found")
	// ErrInvalidRating is returned for ratings other than -1 and 1.
	ErrInvalidRating = errors.New("rating must be -1 or 1")
)

// Rating is a thumbs-down (-1) or thumbs-up (1) verdict on an assistant turn.
type Rating int

const (
	ThumbsDown Rating = -1
	ThumbsUp   Rating = 1
)

// ParseRating validates a wire rating.
func ParseRating(v int) (Rating, error) {
	switch Rating(v) {
	case ThumbsDown, ThumbsUp:
		return Rating(v), nil
	default:
		return 0, fmt.Errorf("%w: got %d", ErrInvalidRating, v)
	}
}

// Feedback is either Unrated or Rated(value). The zero value is Unrated and only the
// Store can move it to Rated, exactly once.
type Feedback struct {
	rated bool
	value Rating
}

// Rated returns the rating and whether one has been recorded.
func (f Feedback) Rated() (Rating, bool) {
	return f.value, f.rated
}

// MarshalJSON encodes Unrated as null and Rated as the rating.
func (f Feedback) MarshalJSON() ([]byte, error) {
	if !f.rated {
		return []byte("null"), nil
	}
	return json.Marshal(int(f.value))
}

// Turn is one message in the assistant conversation.
type Turn struct {
	ID               int64           `json:"id"`
	Role             Role            `json:"role"`
	Content          string          `json:"content"`
	Timestamp        time.Time       `json:"timestamp"`
	Summary          json.RawMessage `json:"summary,omitempty"`
	SuggestedQueries []string        `json:"suggested_queries,omitempty"`
	ChartData        json.RawMessage `json:"chart_data,omitempty"`
	Feedback         Feedback        `json:"user_feedback"`
	IsError          bool            `json:"is_error"`
}

func (t Turn) clone() Turn {
	t.Summary = append(json.RawMessage(nil), t.Summary...)
	t.ChartData = append(json.RawMessage(nil), t.ChartData...)
	t.SuggestedQueries = append([]string(nil), t.SuggestedQueries...)
	if len(t.Summary) == 0 {
		t.Summary = nil
	}
	if len(t.ChartData) == 0 {
		t.ChartData = nil
	}
	if len(t.SuggestedQueries) == 0 {
		t.SuggestedQueries = nil
	}
	return t
}
