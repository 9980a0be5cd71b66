package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/log-console/internal/repo"
	"github.com/miradorstack/log-console/internal/utils"
)

func newTestManager(t *testing.T, handler http.HandlerFunc, opts Options) *Manager {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.Logger = utils.Discard()
	return NewManager(repo.NewClient(repo.ClientOptions{BaseURL: srv.URL}), opts)
}

func TestCreateGetClose(t *testing.T) {
	m := newTestManager(t, nil, Options{})

	s, err := m.Create()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close(s.ID), ErrNotFound)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestMaxSessions(t *testing.T) {
	m := newTestManager(t, nil, Options{MaxSessions: 1})

	_, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestReapExpiresIdleSessions(t *testing.T) {
	m := newTestManager(t, nil, Options{IdleTimeout: time.Minute})
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	idle, err := m.Create()
	require.NoError(t, err)
	active, err := m.Create()
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(50 * time.Second) }
	_, err = m.Get(active.ID)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(90 * time.Second) }
	assert.Equal(t, 1, m.Reap())

	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(active.ID)
	assert.NoError(t, err)
}

func TestSessionsHaveIndependentTokens(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect username or password"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	}, Options{})

	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, a.Login(context.Background(), "admin", "secret"))
	assert.True(t, a.Authenticated())
	assert.False(t, b.Authenticated())

	err = b.Login(context.Background(), "admin", "wrong")
	var httpErr *repo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "Incorrect username or password", httpErr.Detail)

	assert.ErrorIs(t, b.Login(context.Background(), "", ""), ErrMissingCredentials)
}

func TestPanelEventsAndSuggestedQueryClosesPanel(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/logs":
			_, _ = w.Write([]byte(`{"logs":[],"total":0,"page":1,"page_size":50}`))
		case "/api/logs/aggregations":
			_, _ = w.Write([]byte(`{"time_series":[],"top_tokens":[],"sources":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, Options{})

	s, err := m.Create()
	require.NoError(t, err)
	sub := s.Events.Subscribe()
	defer s.Events.Unsubscribe(sub.ID)

	s.SetPanelOpen(true)
	ev := <-sub.C()
	assert.Equal(t, EventPanel, ev.Type)
	assert.Equal(t, PanelState{Open: true}, ev.Data)

	require.NoError(t, s.Dashboard.OnSuggestedQuerySelected(context.Background(), "status:500"))
	assert.False(t, s.PanelOpen())
	assert.Equal(t, "status:500", s.Dashboard.View().State.SearchQuery)
	assert.True(t, s.Dashboard.View().Empty)
}
