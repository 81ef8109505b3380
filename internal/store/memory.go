package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// MemoryStore is an in-memory Store, used for tests and for running
// without durable persistence. It honors the same ordering and idempotence
// contract as the sqlite backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records []event.Record
	byID    map[string]struct{}
	nextSeq uint64

	// now is swappable for deterministic PersistedAt in tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]struct{}),
		now:  time.Now,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, ev event.Event) (AppendResult, error) {
	if err := ev.Validate(); err != nil {
		return Stored, err
	}
	if err := ctx.Err(); err != nil {
		return Stored, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[ev.ID]; ok {
		return Duplicate, nil
	}

	s.nextSeq++
	rec := event.Record{
		Event:       ev,
		PersistedAt: s.now().UTC(),
		Seq:         s.nextSeq,
	}
	s.byID[ev.ID] = struct{}{}

	// Keep records sorted by (timestamp, seq) so Range is a slice window.
	idx := sort.Search(len(s.records), func(i int) bool {
		r := s.records[i]
		if !r.Timestamp.Equal(rec.Timestamp) {
			return r.Timestamp.After(rec.Timestamp)
		}
		return r.Seq > rec.Seq
	})
	s.records = append(s.records, event.Record{})
	copy(s.records[idx+1:], s.records[idx:])
	s.records[idx] = rec

	return Stored, nil
}

// Range implements Store.
func (s *MemoryStore) Range(ctx context.Context, start, end time.Time) ([]event.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Record, 0, len(s.records))
	for _, r := range s.records {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
