package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// NATSSource receives signals published as JSON on a NATS subject. This is
// the live transport between the signal adapter process and the pipeline.
type NATSSource struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	stream string
}

// NewNATSSource connects and subscribes.
func NewNATSSource(url, subject, stream string) (*NATSSource, error) {
	conn, err := nats.Connect(url, nats.Name("vigild"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	sub, err := conn.SubscribeSync(subject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return &NATSSource{conn: conn, sub: sub, stream: stream}, nil
}

// Next implements Source.
func (s *NATSSource) Next(ctx context.Context) (event.Signal, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return event.Signal{}, fmt.Errorf("nats connection closed: %w", err)
		}
		return event.Signal{}, err
	}
	var sig event.Signal
	if err := json.Unmarshal(msg.Data, &sig); err != nil {
		return event.Signal{}, fmt.Errorf("%w: decode signal: %v", event.ErrSignalRejected, err)
	}
	if sig.Stream == "" {
		sig.Stream = s.stream
	}
	return sig, nil
}

// Close implements Source.
func (s *NATSSource) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			return err
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
