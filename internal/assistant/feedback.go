package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/miradorstack/log-console/internal/conversation"
	"github.com/miradorstack/log-console/internal/metrics"
	"github.com/miradorstack/log-console/internal/repo"
)

const defaultFeedbackTimeout = 10 * time.Second

// ErrFeedbackClosed is returned by Submit once the reducer has been closed.
var ErrFeedbackClosed = errors.New("feedback is no longer accepted for this session")

// FeedbackSender is the feedback collection boundary.
type FeedbackSender interface {
	ChatFeedback(ctx context.Context, req repo.FeedbackRequest) error
}

// FeedbackReducer records a rating locally and reports it to the backend in the
// background. A rating is shown as recorded whether or not the report succeeds.
type FeedbackReducer struct {
	store   *conversation.Store
	sender  FeedbackSender
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewFeedbackReducer constructs a reducer. A zero timeout selects the default.
func NewFeedbackReducer(store *conversation.Store, sender FeedbackSender, timeout time.Duration, logger *slog.Logger) *FeedbackReducer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultFeedbackTimeout
	}
	return &FeedbackReducer{store: store, sender: sender, timeout: timeout, logger: logger}
}

// Submit rates turnID. It returns false, nil when the turn already carries a rating;
// in that case nothing is sent.
func (f *FeedbackReducer) Submit(ctx context.Context, turnID int64, rating int, comment string) (bool, error) {
	// Add must not race Close's Wait.
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, ErrFeedbackClosed
	}

	accepted, err := f.store.SetFeedback(turnID, rating)
	if err != nil {
		return false, err
	}
	if !accepted {
		metrics.ObserveFeedback(metrics.OutcomeRejected)
		return false, nil
	}

	req := repo.FeedbackRequest{
		MessageID: strconv.FormatInt(turnID, 10),
		Rating:    rating,
		Comment:   comment,
	}
	sendCtx := context.WithoutCancel(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(sendCtx, f.timeout)
		defer cancel()

		if err := f.sender.ChatFeedback(ctx, req); err != nil {
			metrics.ObserveFeedback(metrics.OutcomeError)
			f.logger.Warn("feedback submission failed", slog.String("message_id", req.MessageID), slog.Any("error", err))
			return
		}
		metrics.ObserveFeedback(metrics.OutcomeSuccess)
	}()
	return true, nil
}

// Wait blocks until every in-flight feedback report has finished.
func (f *FeedbackReducer) Wait() {
	f.wg.Wait()
}

// Close stops accepting ratings and waits for in-flight reports.
func (f *FeedbackReducer) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
}
