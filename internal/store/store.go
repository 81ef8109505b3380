// Package store provides the append-only, replayable event store.
//
// Stored events are immutable and never physically deleted; corrections
// are expressed as new events referencing the original via metadata.
// Range is a pure function of stored state and the queried interval, which
// is what makes downstream snapshots and decisions re-derivable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// ErrUnavailable indicates the storage medium could not be reached within
// the retry budget. The pipeline degrades but does not crash.
var ErrUnavailable = errors.New("store unavailable")

// AppendResult reports the outcome of an append.
type AppendResult int

const (
	// Stored means the event was durably appended.
	Stored AppendResult = iota
	// Duplicate means an event with the same ID was already stored and no
	// mutation was performed. Duplicate is a no-op, not an error, so
	// at-least-once producers can re-deliver safely.
	Duplicate
)

func (r AppendResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "stored"
}

// Store is the append-only event store contract.
//
// Ordering: primary key is the event timestamp; ties are broken by the
// store-assigned monotonic sequence number (insertion order), never by
// event type or ID value. Appends for a single stream are serialized;
// concurrent Range calls observe a consistent prefix.
type Store interface {
	// Append durably stores an event. Idempotent on event ID.
	Append(ctx context.Context, ev event.Event) (AppendResult, error)
	// Range returns all records with window_start <= timestamp <= window_end
	// in (timestamp, seq) order. Identical calls against an unchanged store
	// return identical sequences.
	Range(ctx context.Context, start, end time.Time) ([]event.Record, error)
	// Close releases the backing medium.
	Close() error
}
