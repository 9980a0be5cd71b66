// Package assistant drives the analysis conversation: submitting questions to the
// analysis engine and recording operator feedback on its answers.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/log-console/internal/conversation"
	"github.com/miradorstack/log-console/internal/metrics"
	"github.com/miradorstack/log-console/internal/nlquery"
	"github.com/miradorstack/log-console/internal/repo"
	"github.com/miradorstack/log-console/internal/utils"
)

var (
	// ErrBusy is returned while a previous analysis request is still outstanding.
	ErrBusy = errors.New("an analysis request is already in progress")
	// ErrEmptyInput is returned for blank freeform text.
	ErrEmptyInput = errors.New("message is empty")
	// ErrUnknownAction is returned for a quick action name that does not exist.
	ErrUnknownAction = errors.New("unknown quick action")
)

const defaultAnalysisTimeout = 2 * time.Minute

// Analyzer is the analysis engine boundary.
type Analyzer interface {
	AnalyzeLogs(ctx context.Context, req repo.AnalysisRequest) (*repo.AnalysisResponse, error)
}

// State is the submission state of an orchestrator.
type State int

const (
	Idle State = iota
	Submitting
)

func (s State) String() string {
	if s == Submitting {
		return "submitting"
	}
	return "idle"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKind names an orchestrator notification.
type EventKind string

const (
	EventStateChanged EventKind = "assistant.state"
	EventTurnAppended EventKind = "assistant.turn"
)

// Event is delivered to the OnChange listener after every state change or appended turn.
type Event struct {
	Kind  EventKind          `json:"kind"`
	State State              `json:"state"`
	Turn  *conversation.Turn `json:"turn,omitempty"`
}

// Result holds the two turns one submission appended.
type Result struct {
	Request nlquery.Request   `json:"request"`
	User    conversation.Turn `json:"user"`
	Reply   conversation.Turn `json:"reply"`
}

// Options tune an Orchestrator.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Orchestrator serializes analysis submissions for one conversation.
type Orchestrator struct {
	store    *conversation.Store
	analyzer Analyzer
	timeout  time.Duration
	logger   *slog.Logger

	latencies *utils.LatencyTracker
	now       func() time.Time

	mu       sync.Mutex
	state    State
	listener func(Event)
}

// NewOrchestrator wires an orchestrator over store and analyzer.
func NewOrchestrator(store *conversation.Store, analyzer Analyzer, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAnalysisTimeout
	}
	return &Orchestrator{
		store:     store,
		analyzer:  analyzer,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// OnChange registers the listener for state and turn events, replacing any previous one.
func (o *Orchestrator) OnChange(fn func(Event)) {
	o.mu.Lock()
	o.listener = fn
	o.mu.Unlock()
}

// State returns the current submission state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether a submission is outstanding.
func (o *Orchestrator) Busy() bool {
	return o.State() == Submitting
}

// SubmitText parses freeform operator text and submits it.
func (o *Orchestrator) SubmitText(ctx context.Context, raw string) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, ErrEmptyInput
	}
	req := nlquery.Parse(raw)
	return o.Submit(ctx, req.Keywords, req.TimeWindowMinutes)
}

// SubmitQuickAction submits one of the predefined requests by name.
func (o *Orchestrator) SubmitQuickAction(ctx context.Context, name string) (Result, error) {
	req, ok := nlquery.LookupQuickAction(name)
	if !ok {
		return Result{}, ErrUnknownAction
	}
	return o.Submit(ctx, req.Keywords, req.TimeWindowMinutes)
}

// Submit appends a user turn describing the request, calls the analysis engine with
// the conversation as it stood before that turn, and appends either the engine's
// answer or an error turn. It returns ErrBusy without touching the conversation when
// another submission is outstanding.
func (o *Orchestrator) Submit(ctx context.Context, keywords string, minutes int) (Result, error) {
	if !o.begin() {
		metrics.ObserveAnalysis(0, metrics.OutcomeRejected)
		return Result{}, ErrBusy
	}
	defer o.finish()

	req := nlquery.Request{Keywords: keywords, TimeWindowMinutes: minutes}
	history := o.store.HistoryForContext()
	user := o.store.AppendUser(nlquery.Describe(req))
	o.emit(Event{Kind: EventTurnAppended, State: Submitting, Turn: &user})

	payload := repo.AnalysisRequest{
		TimeWindowMinutes: minutes,
		ChatHistory:       history,
	}
	if keywords != "" {
		kw := keywords
		payload.Keywords = &kw
	}
	reference := o.now().UTC()
	payload.Timestamp = &reference

	// Once issued the request resolves into a turn even if the caller goes away.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.analyzer.AnalyzeLogs(callCtx, payload)
	duration := time.Since(start)

	var reply conversation.Turn
	if err != nil || resp == nil {
		if err == nil {
			err = errors.New("empty analysis response")
		}
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		o.logger.Error("analysis request failed", slog.String("keywords", keywords), slog.Int("minutes", minutes), slog.Any("error", err))
		reply = o.store.AppendError(utils.UserMessage(err))
	} else {
		metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
		o.observeLatency(duration)
		reply = o.store.AppendAssistant(resp)
	}
	o.emit(Event{Kind: EventTurnAppended, State: Submitting, Turn: &reply})

	return Result{Request: req, User: user, Reply: reply}, nil
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	if o.state == Submitting {
		o.mu.Unlock()
		return false
	}
	o.state = Submitting
	o.mu.Unlock()
	o.emit(Event{Kind: EventStateChanged, State: Submitting})
	return true
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.state = Idle
	o.mu.Unlock()
	o.emit(Event{Kind: EventStateChanged, State: Idle})
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	fn := o.listener
	o.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (o *Orchestrator) observeLatency(d time.Duration) {
	if total := o.latencies.Observe(d); total%20 == 0 {
		o.logger.Info("analysis latency", slog.Duration("p95", o.latencies.Percentile(95)), slog.Uint64("observed", total), slog.Int("samples", o.latencies.Count()))
	}
}
