// Package dashboard keeps the log list and the charts in step with one query state.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/miradorstack/log-console/internal/metrics"
	"github.com/miradorstack/log-console/internal/models"
	"github.com/miradorstack/log-console/internal/repo"
)

var (
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("page must be at least 1")
	// ErrInvalidRange is returned for a time range with a missing bound.
	ErrInvalidRange = errors.New("time range needs both start and end")
)

const (
	defaultPageSize = 50
	defaultInterval = "1h"
)

// Backend is the subset of the log backend the dashboard reads from.
type Backend interface {
	FetchLogs(ctx context.Context, q repo.LogQuery) (models.LogPage, error)
	FetchAggregations(ctx context.Context, window models.TimeWindow, interval string) (models.AggregationView, error)
	SearchLogs(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	FetchStats(ctx context.Context) (models.Stats, error)
}

// PanelCloser closes the assistant panel when a suggested query is taken over.
type PanelCloser interface {
	ClosePanel()
}

// Options tune a Coordinator.
type Options struct {
	PageSize    int
	Interval    string
	DrillRadius time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
	// OnChange is called after every applied pane update or state change.
	OnChange func(View)
}

// Coordinator owns the query state and the last good render of each pane. Every
// mutation bumps the generation; fetch results are applied only if their snapshot's
// generation is still current.
type Coordinator struct {
	backend     Backend
	panel       PanelCloser
	interval    string
	drillRadius time.Duration
	logger      *slog.Logger
	now         func() time.Time
	onChange    func(View)

	flight singleflight.Group

	mu         sync.Mutex
	generation uint64
	state      QueryState
	logs       models.LogPage
	logsLoaded bool
	charts     models.AggregationView
	panes      map[string]PaneStatus
	inFlight   int
}

// NewCoordinator starts from the default window ending now, an empty query and page 1.
// No fetch happens until the first mutation or Refresh.
func NewCoordinator(backend Backend, panel PanelCloser, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Interval == "" {
		opts.Interval = defaultInterval
	}
	if opts.DrillRadius <= 0 {
		opts.DrillRadius = models.DefaultDrillRadius
	}
	return &Coordinator{
		backend:     backend,
		panel:       panel,
		interval:    opts.Interval,
		drillRadius: opts.DrillRadius,
		logger:      opts.Logger,
		now:         opts.Now,
		onChange:    opts.OnChange,
		state: QueryState{
			TimeRange: models.DefaultTimeWindow(opts.Now().UTC()),
			Page:      1,
			PageSize:  opts.PageSize,
		},
		panes: map[string]PaneStatus{
			PaneLogs:   {},
			PaneCharts: {},
		},
	}
}

// ApplyPreset replaces the window with the last minutes ending now.
func (c *Coordinator) ApplyPreset(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: preset of %d minutes", ErrInvalidRange, minutes)
	}
	window := models.ApplyPreset(c.now().UTC(), minutes)
	return c.mutate(ctx, func(s *QueryState) error {
		s.TimeRange = window
		s.Page = 1
		return nil
	})
}

// SetTimeRange replaces the window wholesale.
func (c *Coordinator) SetTimeRange(ctx context.Context, window models.TimeWindow) error {
	if window.Start.IsZero() || window.End.IsZero() {
		return ErrInvalidRange
	}
	return c.mutate(ctx, func(s *QueryState) error {
		s.TimeRange = window
		s.Page = 1
		return nil
	})
}

// EditTimeBound replaces a single bound. The result is not reordered.
func (c *Coordinator) EditTimeBound(ctx context.Context, bound models.Bound, value time.Time) error {
	if value.IsZero() {
		return ErrInvalidRange
	}
	return c.mutate(ctx, func(s *QueryState) error {
		window, err := s.TimeRange.WithBound(bound, value)
		if err != nil {
			return err
		}
		s.TimeRange = window
		s.Page = 1
		return nil
	})
}

// SetSearchQuery replaces the search query and returns to page 1.
func (c *Coordinator) SetSearchQuery(ctx context.Context, query string) error {
	return c.mutate(ctx, func(s *QueryState) error {
		s.SearchQuery = query
		s.Page = 1
		return nil
	})
}

// SetSourceFile restricts the log list to one source file; empty clears the filter.
func (c *Coordinator) SetSourceFile(ctx context.Context, source string) error {
	return c.mutate(ctx, func(s *QueryState) error {
		s.SourceFile = source
		s.Page = 1
		return nil
	})
}

// SetPage moves to another page of the same result set.
func (c *Coordinator) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}
	return c.mutate(ctx, func(s *QueryState) error {
		s.Page = page
		return nil
	})
}

// OnChartPointClick narrows the window around a clicked chart timestamp.
func (c *Coordinator) OnChartPointClick(ctx context.Context, ts time.Time) error {
	if ts.IsZero() {
		return ErrInvalidRange
	}
	window := models.NarrowAround(ts.UTC(), c.drillRadius)
	return c.mutate(ctx, func(s *QueryState) error {
		s.TimeRange = window
		s.Page = 1
		return nil
	})
}

// OnSuggestedQuerySelected makes an assistant suggestion the active search and closes
// the assistant panel.
func (c *Coordinator) OnSuggestedQuerySelected(ctx context.Context, query string) error {
	if c.panel != nil {
		c.panel.ClosePanel()
	}
	return c.SetSearchQuery(ctx, query)
}

// Refresh re-fetches both panes for the current state without changing it. Concurrent
// calls for the same generation share one fetch.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.run(ctx, c.snapshot())
}

// View returns a copy of the current render.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Snapshot returns the current generation and query state.
func (c *Coordinator) Snapshot() Snapshot {
	return c.snapshot()
}

// Stats proxies the backend index summary.
func (c *Coordinator) Stats(ctx context.Context) (models.Stats, error) {
	return c.backend.FetchStats(ctx)
}

// Search proxies a structured search body to the backend unchanged.
func (c *Coordinator) Search(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.backend.SearchLogs(ctx, body)
}

func (c *Coordinator) mutate(ctx context.Context, apply func(*QueryState) error) error {
	c.mu.Lock()
	next := c.state
	if err := apply(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	c.generation++
	snap := Snapshot{Generation: c.generation, State: c.state}
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	return c.run(ctx, snap)
}

func (c *Coordinator) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Generation: c.generation, State: c.state}
}

// run performs the coupled refresh for snap. Fetch failures are recorded on the pane
// and logged; run only returns an error when the caller's context ends first.
func (c *Coordinator) run(ctx context.Context, snap Snapshot) error {
	ch := c.flight.DoChan(strconv.FormatUint(snap.Generation, 10), func() (any, error) {
		c.refresh(context.WithoutCancel(ctx), snap)
		return nil, nil
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) refresh(ctx context.Context, snap Snapshot) {
	c.begin(snap)
	defer c.end()

	var g errgroup.Group
	g.Go(func() error {
		page, err := c.backend.FetchLogs(ctx, repo.LogQuery{
			Window:     snap.State.TimeRange,
			Query:      snap.State.SearchQuery,
			SourceFile: snap.State.SourceFile,
			Page:       snap.State.Page,
			PageSize:   snap.State.PageSize,
		})
		c.applyLogs(snap, page, err)
		if err != nil {
			return fmt.Errorf("fetch logs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		view, err := c.backend.FetchAggregations(ctx, snap.State.TimeRange, c.interval)
		c.applyCharts(snap, view, err)
		if err != nil {
			return fmt.Errorf("fetch aggregations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("dashboard refresh incomplete; keeping previous render",
			slog.Uint64("generation", snap.Generation),
			slog.String("window", snap.State.TimeRange.String()),
			slog.Any("error", err))
	}
}

func (c *Coordinator) begin(snap Snapshot) {
	c.mu.Lock()
	c.inFlight++
	if snap.Generation == c.generation {
		for _, pane := range []string{PaneLogs, PaneCharts} {
			st := c.panes[pane]
			st.Loading = true
			c.panes[pane] = st
		}
	}
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.inFlight--
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

func (c *Coordinator) applyLogs(snap Snapshot, page models.LogPage, err error) {
	c.mu.Lock()
	if snap.Generation != c.generation {
		c.mu.Unlock()
		metrics.ObservePaneUpdate(PaneLogs, metrics.OutcomeStale)
		c.logger.Debug("discarding stale log page", slog.Uint64("generation", snap.Generation))
		return
	}
	if err == nil {
		c.logs = page
		c.logsLoaded = true
	}
	c.panes[PaneLogs] = c.settle(snap, err)
	view := c.viewLocked()
	c.mu.Unlock()

	metrics.ObservePaneUpdate(PaneLogs, outcome(err))
	c.notify(view)
}

func (c *Coordinator) applyCharts(snap Snapshot, agg models.AggregationView, err error) {
	c.mu.Lock()
	if snap.Generation != c.generation {
		c.mu.Unlock()
		metrics.ObservePaneUpdate(PaneCharts, metrics.OutcomeStale)
		c.logger.Debug("discarding stale aggregations", slog.Uint64("generation", snap.Generation))
		return
	}
	if err == nil {
		c.charts = agg
	}
	c.panes[PaneCharts] = c.settle(snap, err)
	view := c.viewLocked()
	c.mu.Unlock()

	metrics.ObservePaneUpdate(PaneCharts, outcome(err))
	c.notify(view)
}

func (c *Coordinator) settle(snap Snapshot, err error) PaneStatus {
	st := PaneStatus{Generation: snap.Generation, RefreshedAt: c.now().UTC()}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

func (c *Coordinator) viewLocked() View {
	panes := make(map[string]PaneStatus, len(c.panes))
	for k, v := range c.panes {
		panes[k] = v
	}
	logs := make([]models.LogRecord, len(c.logs.Logs))
	copy(logs, c.logs.Logs)

	return View{
		Generation:   c.generation,
		State:        c.state,
		Logs:         logs,
		Total:        c.logs.Total,
		TotalPages:   TotalPages(c.logs.Total, c.state.PageSize),
		Empty:        c.logsLoaded && c.logs.Total == 0,
		Aggregations: copyAggregations(c.charts),
		Panes:        panes,
		Busy:         c.inFlight > 0,
	}
}

func (c *Coordinator) notify(v View) {
	if c.onChange != nil {
		c.onChange(v)
	}
}

func copyAggregations(v models.AggregationView) models.AggregationView {
	return models.AggregationView{
		TimeSeries: append([]models.TimeBucket{}, v.TimeSeries...),
		TopTokens:  append([]models.TokenCount{}, v.TopTokens...),
		Sources:    append([]models.SourceCount{}, v.Sources...),
	}
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}
