package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/decision"
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
	"github.com/fyrsmithlabs/vigild/internal/store"
)

// ReplayResult pairs the snapshot re-derived over a window with the
// decision it produces from a clean IDLE state.
type ReplayResult struct {
	Snapshot *snapshot.Snapshot `json:"snapshot"`
	Decision decision.Decision  `json:"decision"`
}

// Replay re-derives analysis purely from the stored event sequence. It
// consults no live pipeline state, so two replays over the same stored
// range produce identical snapshots and identical decisions.
func Replay(ctx context.Context, st store.Store, builder *snapshot.Builder, decider *decision.Engine, start, end time.Time) (*ReplayResult, error) {
	records, err := st.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read stored events: %w", err)
	}
	snap, err := builder.Build(records, start, end)
	if err != nil {
		return nil, fmt.Errorf("rebuild snapshot: %w", err)
	}
	dec, err := decider.Evaluate(snap, decision.StateIdle)
	if err != nil {
		return nil, fmt.Errorf("re-evaluate decision: %w", err)
	}
	return &ReplayResult{Snapshot: snap, Decision: dec}, nil
}
