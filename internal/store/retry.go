package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/logging"
)

// RetryStore decorates a Store with bounded exponential backoff on append
// failures. When the retry budget is exhausted the store enters degraded
// mode: appends fail with ErrUnavailable but the pipeline keeps accepting
// signals. On the first successful append after a degraded span, a
// HISTORY_GAP event is appended so replay consumers can see that events
// may be missing.
type RetryStore struct {
	inner      Store
	maxRetries int
	backoff    time.Duration
	log        *logging.Logger

	mu           sync.Mutex
	degraded     bool
	gapStart     time.Time
	gapDropped   int
	sleep        func(context.Context, time.Duration) error // swappable in tests
	gapSourceRef string
}

// NewRetryStore wraps inner with a retry budget. backoff doubles per
// attempt, starting at the configured base.
func NewRetryStore(inner Store, maxRetries int, backoff time.Duration, log *logging.Logger) *RetryStore {
	if log == nil {
		log = logging.NewNop()
	}
	return &RetryStore{
		inner:        inner,
		maxRetries:   maxRetries,
		backoff:      backoff,
		log:          log.Named("store"),
		sleep:        ctxSleep,
		gapSourceRef: "store/retry",
	}
}

// Append implements Store.
func (r *RetryStore) Append(ctx context.Context, ev event.Event) (AppendResult, error) {
	var lastErr error
	delay := r.backoff
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			RetriesTotal.Inc()
			if err := r.sleep(ctx, delay); err != nil {
				return Stored, err
			}
			delay *= 2
		}

		res, err := r.inner.Append(ctx, ev)
		if err == nil {
			r.recovered(ctx, ev)
			AppendsTotal.WithLabelValues(res.String()).Inc()
			return res, nil
		}
		if errors.Is(err, event.ErrInvalidEvent) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		lastErr = err
		r.log.Warn(ctx, "event append failed",
			zap.String("event_id", ev.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	r.markDegraded(ctx, ev)
	AppendsTotal.WithLabelValues("error").Inc()
	return Stored, fmt.Errorf("%w: retries exhausted: %v", ErrUnavailable, lastErr)
}

// ctxSleep blocks for the backoff delay unless the context ends first.
func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Range implements Store.
func (r *RetryStore) Range(ctx context.Context, start, end time.Time) ([]event.Record, error) {
	return r.inner.Range(ctx, start, end)
}

// Close implements Store.
func (r *RetryStore) Close() error { return r.inner.Close() }

// Degraded reports whether the store is currently in degraded mode.
func (r *RetryStore) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

func (r *RetryStore) markDegraded(ctx context.Context, ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.degraded {
		r.degraded = true
		r.gapStart = ev.Timestamp
		DegradedGauge.Set(1)
		r.log.Error(ctx, "store degraded, marking gap in event history",
			zap.Time("gap_start", r.gapStart),
		)
	}
	r.gapDropped++
}

// recovered closes an open degraded span by appending a HISTORY_GAP event
// covering it. The gap event itself goes through the inner store directly:
// if it fails we stay degraded and try again on the next success.
func (r *RetryStore) recovered(ctx context.Context, ev event.Event) {
	r.mu.Lock()
	if !r.degraded {
		r.mu.Unlock()
		return
	}
	gapStart := r.gapStart
	dropped := r.gapDropped
	r.mu.Unlock()

	gap, err := event.NewAtomic(event.TypeHistoryGap, ev.Timestamp, 1.0, r.gapSourceRef, map[string]string{
		"gap_started_at": gapStart.UTC().Format(time.RFC3339Nano),
		"events_dropped": fmt.Sprintf("%d", dropped),
	})
	if err != nil {
		r.log.Error(ctx, "failed to build history gap event", zap.Error(err))
		return
	}
	if _, err := r.inner.Append(ctx, gap); err != nil {
		r.log.Error(ctx, "failed to append history gap event", zap.Error(err))
		return
	}

	r.mu.Lock()
	r.degraded = false
	r.gapDropped = 0
	r.mu.Unlock()
	DegradedGauge.Set(0)
	r.log.Info(ctx, "store recovered",
		zap.Time("gap_start", gapStart),
		zap.Int("events_dropped", dropped),
	)
}
