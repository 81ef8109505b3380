package engine

import (
	"sort"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// ReorderBuffer absorbs bounded arrival jitter: signals are held for the
// reorder window, sorted by timestamp, and released forward-only. A signal
// older than the release watermark arrives too late to be re-evaluated and
// is dropped with a diagnostic counter, never silently reordered.
type ReorderBuffer struct {
	window    time.Duration
	pending   []event.Signal
	maxSeen   time.Time
	watermark time.Time
}

// NewReorderBuffer creates a buffer with the given jitter window. A zero
// window passes signals through in arrival order.
func NewReorderBuffer(window time.Duration) *ReorderBuffer {
	return &ReorderBuffer{window: window}
}

// Offer inserts a signal and returns the signals whose timestamps have
// fallen behind the newest arrival by more than the window, in timestamp
// order. Late signals (older than anything already released) are dropped
// and reported via the second return value.
func (b *ReorderBuffer) Offer(sig event.Signal) (released []event.Signal, late bool) {
	if !b.watermark.IsZero() && sig.Timestamp.Before(b.watermark) {
		SignalsLate.Inc()
		return nil, true
	}

	b.pending = append(b.pending, sig)
	if sig.Timestamp.After(b.maxSeen) {
		b.maxSeen = sig.Timestamp
	}

	sort.SliceStable(b.pending, func(i, j int) bool {
		return b.pending[i].Timestamp.Before(b.pending[j].Timestamp)
	})

	cutoff := b.maxSeen.Add(-b.window)
	n := 0
	for n < len(b.pending) && !b.pending[n].Timestamp.After(cutoff) {
		n++
	}
	if n == 0 {
		return nil, false
	}
	released = make([]event.Signal, n)
	copy(released, b.pending[:n])
	b.pending = b.pending[n:]
	b.watermark = released[n-1].Timestamp
	return released, false
}

// Flush releases all pending signals in timestamp order, typically at
// end-of-stream or on shutdown.
func (b *ReorderBuffer) Flush() []event.Signal {
	out := b.pending
	b.pending = nil
	if len(out) > 0 {
		b.watermark = out[len(out)-1].Timestamp
	}
	return out
}

// Pending returns the number of buffered signals.
func (b *ReorderBuffer) Pending() int { return len(b.pending) }
