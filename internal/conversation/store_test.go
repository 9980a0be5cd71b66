package conversation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/log-console/internal/repo"
)

func fixedStore(now time.Time) *Store {
	s := NewStore()
	s.now = func() time.Time { return now }
	return s
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := NewStore()
	a := s.AppendUser("first")
	b := s.AppendError("boom")
	c := s.AppendUser("second")
	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Fatalf("ids not monotonic: %d %d %d", a.ID, b.ID, c.ID)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 turns, got %d", s.Len())
	}
}

func TestAppendAssistantKeepsEngineTimestamp(t *testing.T) {
	local := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := fixedStore(local)

	turn := s.AppendAssistant(&repo.AnalysisResponse{
		Analysis:         "All quiet.",
		Timestamp:        "2024-05-01T12:00:00Z",
		Summary:          json.RawMessage(`{"errors":0}`),
		SuggestedQueries: []string{"level:ERROR"},
		ChartData:        json.RawMessage(`null`),
	})

	if turn.Role != RoleAssistant || turn.Content != "All quiet." {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if !turn.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected engine timestamp, got %v", turn.Timestamp)
	}
	if string(turn.Summary) != `{"errors":0}` || turn.ChartData != nil {
		t.Fatalf("unexpected payloads: summary=%s chart=%s", turn.Summary, turn.ChartData)
	}

	fallback := s.AppendAssistant(&repo.AnalysisResponse{Analysis: "x", Timestamp: "not a time"})
	if !fallback.Timestamp.Equal(local) {
		t.Fatalf("expected local clock fallback, got %v", fallback.Timestamp)
	}
}

func TestAppendError(t *testing.T) {
	s := NewStore()
	turn := s.AppendError("backend returned 502 Bad Gateway")
	if !turn.IsError || turn.Role != RoleAssistant || turn.Content != "Error: backend returned 502 Bad Gateway" {
		t.Fatalf("unexpected error turn: %+v", turn)
	}
}

func TestHistoryForContextIsOrderedProjection(t *testing.T) {
	s := NewStore()
	s.AppendUser("q1")
	s.AppendAssistant(&repo.AnalysisResponse{Analysis: "a1"})
	history := s.HistoryForContext()
	s.AppendUser("q2")

	if len(history) != 2 {
		t.Fatalf("snapshot must not include later turns, got %d", len(history))
	}
	if history[0] != (repo.ChatMessage{Role: "user", Content: "q1"}) || history[1] != (repo.ChatMessage{Role: "assistant", Content: "a1"}) {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestSetFeedbackAtMostOnce(t *testing.T) {
	s := NewStore()
	turn := s.AppendAssistant(&repo.AnalysisResponse{Analysis: "a"})

	ok, err := s.SetFeedback(turn.ID, 1)
	if err != nil || !ok {
		t.Fatalf("first feedback should be accepted: %v %v", ok, err)
	}
	ok, err = s.SetFeedback(turn.ID, -1)
	if err != nil || ok {
		t.Fatalf("second feedback must be a no-op: %v %v", ok, err)
	}

	stored, _ := s.Turn(turn.ID)
	rating, rated := stored.Feedback.Rated()
	if !rated || rating != ThumbsUp {
		t.Fatalf("expected rating to stay 1, got %v %v", rating, rated)
	}
}

func TestSetFeedbackValidation(t *testing.T) {
	s := NewStore()
	turn := s.AppendAssistant(&repo.AnalysisResponse{Analysis: "a"})

	if _, err := s.SetFeedback(turn.ID, 0); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := s.SetFeedback(999, 1); !errors.Is(err, ErrTurnNotFound) {
		t.Fatalf("expected ErrTurnNotFound, got %v", err)
	}
	if _, rated := s.Turns()[0].Feedback.Rated(); rated {
		t.Fatalf("rejected feedback must leave the turn unrated")
	}
}

func TestTurnsAreCopies(t *testing.T) {
	s := NewStore()
	s.AppendAssistant(&repo.AnalysisResponse{Analysis: "a", SuggestedQueries: []string{"status:500"}})

	turns := s.Turns()
	turns[0].SuggestedQueries[0] = "mutated"
	turns[0].Content = "mutated"

	fresh := s.Turns()
	if fresh[0].SuggestedQueries[0] != "status:500" || fresh[0].Content != "a" {
		t.Fatalf("store state leaked through a copy: %+v", fresh[0])
	}
}

func TestFeedbackJSON(t *testing.T) {
	s := NewStore()
	turn := s.AppendAssistant(&repo.AnalysisResponse{Analysis: "a"})

	data, _ := json.Marshal(turn)
	var decoded map[string]any
	_ = json.Unmarshal(data, &decoded)
	if decoded["user_feedback"] != nil {
		t.Fatalf("unrated feedback should encode as null, got %v", decoded["user_feedback"])
	}

	_, _ = s.SetFeedback(turn.ID, -1)
	rated, _ := s.Turn(turn.ID)
	data, _ = json.Marshal(rated)
	_ = json.Unmarshal(data, &decoded)
	if decoded["user_feedback"] != float64(-1) {
		t.Fatalf("expected -1, got %v", decoded["user_feedback"])
	}
}
