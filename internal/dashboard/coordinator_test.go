package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/log-console/internal/models"
	"github.com/miradorstack/log-console/internal/repo"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type backendStub struct {
	mu        sync.Mutex
	queries   []repo.LogQuery
	windows   []models.TimeWindow
	intervals []string

	// gates block FetchLogs for a given search query until closed.
	gates    map[string]chan struct{}
	entered  map[string]chan struct{}
	pages    map[string]models.LogPage
	logsErr  error
	aggs     models.AggregationView
	aggsErr  error
	aggCalls atomic.Int32
}

func newBackendStub() *backendStub {
	return &backendStub{
		gates:   map[string]chan struct{}{},
		entered: map[string]chan struct{}{},
		pages:   map[string]models.LogPage{},
	}
}

func (b *backendStub) gate(query string) (entered, release chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entered[query] = make(chan struct{})
	b.gates[query] = make(chan struct{})
	return b.entered[query], b.gates[query]
}

func (b *backendStub) FetchLogs(ctx context.Context, q repo.LogQuery) (models.LogPage, error) {
	b.mu.Lock()
	b.queries = append(b.queries, q)
	gate := b.gates[q.Query]
	entered := b.entered[q.Query]
	page, ok := b.pages[q.Query]
	err := b.logsErr
	b.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return models.LogPage{}, err
	}
	if !ok {
		page = models.LogPage{Logs: []models.LogRecord{}, Page: q.Page, PageSize: q.PageSize}
	}
	return page, nil
}

func (b *backendStub) FetchAggregations(ctx context.Context, window models.TimeWindow, interval string) (models.AggregationView, error) {
	b.aggCalls.Add(1)
	b.mu.Lock()
	b.windows = append(b.windows, window)
	b.intervals = append(b.intervals, interval)
	b.mu.Unlock()
	return b.aggs, b.aggsErr
}

func (b *backendStub) SearchLogs(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return body, nil
}

func (b *backendStub) FetchStats(ctx context.Context) (models.Stats, error) {
	return models.Stats{TotalEvents: 42}, nil
}

func (b *backendStub) lastQuery() repo.LogQuery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries[len(b.queries)-1]
}

type panelStub struct{ closed bool }

func (p *panelStub) ClosePanel() { p.closed = true }

func newTestCoordinator(b *backendStub, panel PanelCloser) *Coordinator {
	return NewCoordinator(b, panel, Options{
		PageSize: 50,
		Interval: "5m",
		Now:      func() time.Time { return fixedNow },
	})
}

func TestInitialState(t *testing.T) {
	c := newTestCoordinator(newBackendStub(), nil)
	view := c.View()

	assert.Equal(t, fixedNow.Add(-time.Hour), view.State.TimeRange.Start)
	assert.Equal(t, fixedNow, view.State.TimeRange.End)
	assert.Equal(t, 1, view.State.Page)
	assert.Equal(t, 50, view.State.PageSize)
	assert.False(t, view.Empty, "nothing fetched yet")
	assert.False(t, view.Busy)
}

func TestSearchQueryResetsPage(t *testing.T) {
	b := newBackendStub()
	c := newTestCoordinator(b, nil)
	ctx := context.Background()

	require.NoError(t, c.SetPage(ctx, 3))
	assert.Equal(t, 3, b.lastQuery().Page)

	require.NoError(t, c.SetSearchQuery(ctx, "level:ERROR"))
	last := b.lastQuery()
	assert.Equal(t, 1, last.Page, "page must reset before the fetch is issued")
	assert.Equal(t, "level:ERROR", last.Query)
	assert.Equal(t, 1, c.View().State.Page)
}

func TestPageChangeKeepsFilterAndRefreshesBothPanes(t *testing.T) {
	b := newBackendStub()
	c := newTestCoordinator(b, nil)
	ctx := context.Background()

	require.NoError(t, c.SetSearchQuery(ctx, "timeout"))
	require.NoError(t, c.SetPage(ctx, 2))

	last := b.lastQuery()
	assert.Equal(t, "timeout", last.Query)
	assert.Equal(t, 2, last.Page)
	assert.Equal(t, int32(2), b.aggCalls.Load())
	assert.Equal(t, []string{"5m", "5m"}, b.intervals)
}

func TestSetPageRejectsNonPositive(t *testing.T) {
	b := newBackendStub()
	c := newTestCoordinator(b, nil)

	err := c.SetPage(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidPage)
	assert.Empty(t, b.queries, "no fetch for a rejected page")
	assert.Equal(t, uint64(0), c.View().Generation)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	b := newBackendStub()
	b.pages["s1"] = models.LogPage{Logs: []models.LogRecord{{RawLine: "from s1"}}, Total: 1}
	b.pages["s2"] = models.LogPage{Logs: []models.LogRecord{{RawLine: "from s2"}}, Total: 1}
	entered, release := b.gate("s1")
	c := newTestCoordinator(b, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SetSearchQuery(ctx, "s1") }()
	<-entered

	require.NoError(t, c.SetSearchQuery(ctx, "s2"))
	view := c.View()
	require.Len(t, view.Logs, 1)
	assert.Equal(t, "from s2", view.Logs[0].RawLine)

	close(release)
	require.NoError(t, <-done)

	view = c.View()
	require.Len(t, view.Logs, 1)
	assert.Equal(t, "from s2", view.Logs[0].RawLine, "late s1 response must not overwrite s2")
	assert.Equal(t, "s2", view.State.SearchQuery)
	assert.False(t, view.Busy)
}

func TestFailedPaneKeepsPreviousRender(t *testing.T) {
	b := newBackendStub()
	b.pages[""] = models.LogPage{Logs: []models.LogRecord{{RawLine: "ok"}}, Total: 1}
	b.aggs = models.AggregationView{TimeSeries: []models.TimeBucket{{Timestamp: fixedNow, Count: 3}}}
	c := newTestCoordinator(b, nil)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	b.mu.Lock()
	b.logsErr = errors.New("connection refused")
	b.mu.Unlock()
	b.aggs = models.AggregationView{TimeSeries: []models.TimeBucket{{Timestamp: fixedNow, Count: 7}}}
	require.NoError(t, c.ApplyPreset(ctx, 15))

	view := c.View()
	require.Len(t, view.Logs, 1)
	assert.Equal(t, "ok", view.Logs[0].RawLine)
	assert.Contains(t, view.Panes[PaneLogs].Error, "connection refused")
	assert.Empty(t, view.Panes[PaneCharts].Error)
	assert.Equal(t, 7, view.Aggregations.TimeSeries[0].Count, "the healthy pane still updates")
}

func TestEmptyResultAndTotalPages(t *testing.T) {
	b := newBackendStub()
	b.pages[""] = models.LogPage{Logs: []models.LogRecord{}, Total: 0}
	b.pages["big"] = models.LogPage{Logs: []models.LogRecord{{RawLine: "x"}}, Total: 237}
	c := newTestCoordinator(b, nil)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))
	view := c.View()
	assert.True(t, view.Empty)
	assert.Equal(t, 0, view.TotalPages)
	assert.Empty(t, view.Panes[PaneLogs].Error)

	require.NoError(t, c.SetSearchQuery(ctx, "big"))
	view = c.View()
	assert.False(t, view.Empty)
	assert.Equal(t, 5, view.TotalPages)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 5, TotalPages(237, 50))
	assert.Equal(t, 1, TotalPages(50, 50))
	assert.Equal(t, 2, TotalPages(51, 50))
	assert.Equal(t, 0, TotalPages(0, 50))
	assert.Equal(t, 0, TotalPages(10, 0))
}

func TestChartPointClickNarrowsWindow(t *testing.T) {
	b := newBackendStub()
	c := newTestCoordinator(b, nil)
	ctx := context.Background()
	require.NoError(t, c.SetPage(ctx, 4))

	clicked := time.Date(2024, 5, 1, 11, 30, 0, 0, time.UTC)
	require.NoError(t, c.OnChartPointClick(ctx, clicked))

	view := c.View()
	assert.Equal(t, clicked.Add(-5*time.Minute), view.State.TimeRange.Start)
	assert.Equal(t, clicked.Add(5*time.Minute), view.State.TimeRange.End)
	assert.Equal(t, 1, view.State.Page)
	assert.True(t, b.lastQuery().Window.Equal(view.State.TimeRange))
}

func TestSuggestedQueryClosesPanel(t *testing.T) {
	b := newBackendStub()
	panel := &panelStub{}
	c := newTestCoordinator(b, panel)
	ctx := context.Background()
	require.NoError(t, c.SetPage(ctx, 3))

	require.NoError(t, c.OnSuggestedQuerySelected(ctx, "status:500"))

	view := c.View()
	assert.Equal(t, "status:500", view.State.SearchQuery)
	assert.Equal(t, 1, view.State.Page)
	assert.True(t, panel.closed)
}

func TestEditTimeBoundIsPermissive(t *testing.T) {
	c := newTestCoordinator(newBackendStub(), nil)
	ctx := context.Background()

	later := fixedNow.Add(time.Hour)
	require.NoError(t, c.EditTimeBound(ctx, models.BoundStart, later))
	view := c.View()
	assert.Equal(t, later, view.State.TimeRange.Start)
	assert.Equal(t, fixedNow, view.State.TimeRange.End)
	assert.False(t, view.State.TimeRange.Valid())

	require.ErrorIs(t, c.EditTimeBound(ctx, models.Bound("middle"), fixedNow), models.ErrInvalidBound)
}

func TestSetTimeRangeRejectsMissingBound(t *testing.T) {
	c := newTestCoordinator(newBackendStub(), nil)
	err := c.SetTimeRange(context.Background(), models.TimeWindow{End: fixedNow})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestConcurrentRefreshesShareOneFetch(t *testing.T) {
	b := newBackendStub()
	entered, release := b.gate("")
	c := newTestCoordinator(b, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Refresh(ctx))
	}()
	<-entered
	assert.True(t, c.View().Busy)

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Refresh(ctx))
	}()
	// Give the second caller time to join the in-flight call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	b.mu.Lock()
	calls := len(b.queries)
	b.mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.False(t, c.View().Busy)
}

func TestOnChangeReceivesViews(t *testing.T) {
	b := newBackendStub()
	var mu sync.Mutex
	var views []View
	c := NewCoordinator(b, nil, Options{
		Now: func() time.Time { return fixedNow },
		OnChange: func(v View) {
			mu.Lock()
			views = append(views, v)
			mu.Unlock()
		},
	})

	require.NoError(t, c.SetSearchQuery(context.Background(), "q"))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	assert.False(t, views[len(views)-1].Busy)
	assert.Equal(t, "q", views[len(views)-1].State.SearchQuery)
}

func TestStatsAndSearchProxy(t *testing.T) {
	c := newTestCoordinator(newBackendStub(), nil)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.TotalEvents)

	body := json.RawMessage(`{"query":"x"}`)
	out, err := c.Search(context.Background(), body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"x"}`, string(out))
}
