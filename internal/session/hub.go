package session

import (
	"fmt"
	"sync"
	"time"
)

const defaultBufferSize = 64

// Event types published on a session's hub.
const (
	EventAssistant = "assistant"
	EventDashboard = "dashboard"
	EventPanel     = "panel"
	EventClosed    = "session.closed"
)

// Event is one notification pushed to the session's subscribers.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Subscription receives events until it is closed.
type Subscription struct {
	ID     string
	ch     chan Event
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// Hub fans session events out to subscribers. Slow subscribers lose events rather
// than blocking the publisher.
type Hub struct {
	bufferSize int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	nextID uint64
	closed bool
}

// NewHub creates a hub whose subscriptions buffer bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{bufferSize: bufferSize, subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscriber. On a closed hub the subscription is already ended.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		ID:   fmt.Sprintf("sub-%d", h.nextID),
		ch:   make(chan Event, h.bufferSize),
		done: make(chan struct{}),
	}
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe ends a subscription.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers ev to every subscriber with buffer space.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		sub.mu.Lock()
		if !sub.closed {
			select {
			case sub.ch <- ev:
			default:
			}
		}
		sub.mu.Unlock()
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
