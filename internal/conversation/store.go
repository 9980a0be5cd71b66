// Package conversation holds the ordered, append-only history of assistant turns.
package conversation

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/miradorstack/log-console/internal/repo"
)

// Store owns the turns of one conversation. Turns leave the store only as copies.
type Store struct {
	mu     sync.RWMutex
	turns  []Turn
	index  map[int64]int
	nextID int64
	now    func() time.Time
}

// NewStore returns an empty conversation.
func NewStore() *Store {
	return &Store{index: make(map[int64]int), now: time.Now}
}

// AppendUser records an operator message stamped with the local clock.
func (s *Store) AppendUser(content string) Turn {
	return s.append(Turn{Role: RoleUser, Content: content, Timestamp: s.now().UTC()})
}

// AppendAssistant records a successful analysis. The engine's timestamp is kept; the
// local clock is used only when the engine sent none that parses.
func (s *Store) AppendAssistant(resp *repo.AnalysisResponse) Turn {
	ts, ok := resp.Time()
	if !ok {
		ts = s.now().UTC()
	}
	return s.append(Turn{
		Role:             RoleAssistant,
		Content:          resp.Analysis,
		Timestamp:        ts,
		Summary:          nonNull(resp.Summary),
		SuggestedQueries: resp.SuggestedQueries,
		ChartData:        nonNull(resp.ChartData),
	})
}

// AppendError records a failed analysis as an assistant turn.
func (s *Store) AppendError(message string) Turn {
	return s.append(Turn{
		Role:      RoleAssistant,
		Content:   "Error: " + message,
		Timestamp: s.now().UTC(),
		IsError:   true,
	})
}

// HistoryForContext projects every turn so far into role/content pairs, in order.
func (s *Store) HistoryForContext() []repo.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]repo.ChatMessage, 0, len(s.turns))
	for _, t := range s.turns {
		history = append(history, repo.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return history
}

// SetFeedback records rating on turn id if it has none yet. It reports false, without
// error, when the turn was already rated.
func (s *Store) SetFeedback(id int64, rating int) (bool, error) {
	r, err := ParseRating(rating)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, ErrTurnNotFound
	}
	if s.turns[i].Feedback.rated {
		return false, nil
	}
	s.turns[i].Feedback = Feedback{rated: true, value: r}
	return true, nil
}

// Turn returns a copy of the turn with the given id.
func (s *Store) Turn(id int64) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	return s.turns[i].clone(), true
}

// Turns returns copies of all turns in insertion order.
func (s *Store) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, 0, len(s.turns))
	for _, t := range s.turns {
		out = append(out, t.clone())
	}
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Store) append(t Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t.ID = s.nextID
	t = t.clone()
	s.index[t.ID] = len(s.turns)
	s.turns = append(s.turns, t)
	return t.clone()
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
