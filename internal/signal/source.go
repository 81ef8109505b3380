// Package signal provides signal adapter implementations. The pipeline
// core is written against Source only and never assumes a specific
// acquisition transport.
package signal

import (
	"context"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// Source is a lazy, restartable-per-session sequence of timestamped
// observations. Next blocks until a signal is available, the stream ends
// (io.EOF), or ctx is done.
type Source interface {
	Next(ctx context.Context) (event.Signal, error)
	Close() error
}
