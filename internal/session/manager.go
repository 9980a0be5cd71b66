package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/log-console/internal/metrics"
	"github.com/miradorstack/log-console/internal/repo"
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("too many open sessions")
	// ErrMissingCredentials is returned by Login for a blank username or password.
	ErrMissingCredentials = errors.New("username and password are required")
)

// Options configure every session a Manager creates.
type Options struct {
	PageSize            int
	AggregationInterval string
	DrillRadius         time.Duration
	AnalysisTimeout     time.Duration
	FeedbackTimeout     time.Duration
	IdleTimeout         time.Duration
	ReapInterval        time.Duration
	MaxSessions         int
	EventBuffer         int
	Logger              *slog.Logger
}

// Manager creates, finds and expires sessions.
type Manager struct {
	client *repo.Client
	opts   Options
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closing  sync.WaitGroup
}

// NewManager builds a manager. Each session gets its own clone of client so that a
// login in one tab never leaks a token into another.
func NewManager(client *repo.Client, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	return &Manager{
		client:   client,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session.
func (m *Manager) Create() (*Session, error) {
	now := m.now().UTC()

	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	id := uuid.NewString()
	s := newSession(id, m.client.Clone(), m.opts, now)
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.SessionOpened()
	m.opts.Logger.Debug("session opened", slog.String("session", id))
	return s, nil
}

// Get returns the session and marks it as recently used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(m.now().UTC())
	return s, nil
}

// Close ends a session. Pending feedback reports finish in the background.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.release(s, "closed")
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than the idle timeout and returns how many.
func (m *Manager) Reap() int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	now := m.now().UTC()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) > m.opts.IdleTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.release(s, "expired")
	}
	return len(expired)
}

// Run reaps idle sessions until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(); n > 0 {
				m.opts.Logger.Info("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Shutdown closes every session and waits for their pending feedback reports.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.release(s, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		m.closing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release(s *Session, reason string) {
	metrics.SessionClosed()
	m.opts.Logger.Debug("session released", slog.String("session", s.ID), slog.String("reason", reason))
	m.closing.Add(1)
	go func() {
		defer m.closing.Done()
		s.close()
	}()
}
