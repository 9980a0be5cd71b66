// Package session gives every operator tab its own dashboard, conversation and
// backend credentials.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/log-console/internal/assistant"
	"github.com/miradorstack/log-console/internal/conversation"
	"github.com/miradorstack/log-console/internal/dashboard"
	"github.com/miradorstack/log-console/internal/repo"
)

// Session is one operator's console state.
type Session struct {
	ID        string
	CreatedAt time.Time

	Conversation *conversation.Store
	Assistant    *assistant.Orchestrator
	Feedback     *assistant.FeedbackReducer
	Dashboard    *dashboard.Coordinator
	Events       *Hub

	client *repo.Client
	logger *slog.Logger

	mu        sync.Mutex
	panelOpen bool
	lastSeen  time.Time
}

func newSession(id string, client *repo.Client, opts Options, now time.Time) *Session {
	logger := opts.Logger.With(slog.String("session", id))
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		Conversation: conversation.NewStore(),
		Events:       NewHub(opts.EventBuffer),
		client:       client,
		logger:       logger,
		lastSeen:     now,
	}
	s.Assistant = assistant.NewOrchestrator(s.Conversation, client, assistant.Options{
		Timeout: opts.AnalysisTimeout,
		Logger:  logger,
	})
	s.Assistant.OnChange(func(ev assistant.Event) {
		s.Events.Publish(Event{Type: EventAssistant, Data: ev})
	})
	s.Feedback = assistant.NewFeedbackReducer(s.Conversation, client, opts.FeedbackTimeout, logger)
	s.Dashboard = dashboard.NewCoordinator(client, s, dashboard.Options{
		PageSize:    opts.PageSize,
		Interval:    opts.AggregationInterval,
		DrillRadius: opts.DrillRadius,
		Logger:      logger,
		OnChange: func(v dashboard.View) {
			s.Events.Publish(Event{Type: EventDashboard, Data: v})
		},
	})
	return s
}

// PanelState is the assistant panel visibility as published to subscribers.
type PanelState struct {
	Open bool `json:"open"`
}

// ClosePanel hides the assistant panel.
func (s *Session) ClosePanel() {
	s.SetPanelOpen(false)
}

// SetPanelOpen shows or hides the assistant panel.
func (s *Session) SetPanelOpen(open bool) {
	s.mu.Lock()
	changed := s.panelOpen != open
	s.panelOpen = open
	s.mu.Unlock()

	if changed {
		s.Events.Publish(Event{Type: EventPanel, Data: PanelState{Open: open}})
	}
}

// PanelOpen reports whether the assistant panel is visible.
func (s *Session) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

// Login exchanges credentials for a bearer token used by this session's backend calls.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	resp, err := s.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	s.client.SetToken(resp.BearerToken())
	s.logger.Info("session authenticated", slog.String("username", username))
	return nil
}

// Authenticated reports whether a bearer token is attached to backend calls.
func (s *Session) Authenticated() bool {
	return s.client.Token() != ""
}

// LastSeen returns the time of the last request that touched the session.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) close() {
	s.Events.Publish(Event{Type: EventClosed})
	s.Events.Close()
	s.Feedback.Close()
}
