package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

func record(t *testing.T, typ event.Type, ts time.Time, confidence float64, seq uint64) event.Record {
	t.Helper()
	ev, err := event.NewAtomic(typ, ts, confidence, "stream-0", nil)
	require.NoError(t, err)
	return event.Record{Event: ev, PersistedAt: ts, Seq: seq}
}

func compositeRecord(t *testing.T, typ event.Type, ts time.Time, confidence float64, constituents []string, seq uint64) event.Record {
	t.Helper()
	ev, err := event.NewComposite(typ, "potential_fall", ts, confidence, constituents)
	require.NoError(t, err)
	return event.Record{Event: ev, PersistedAt: ts, Seq: seq}
}

func TestBuildValidation(t *testing.T) {
	b := NewBuilder(Config{})
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	t.Run("inverted window rejected", func(t *testing.T) {
		_, err := b.Build(nil, base, base.Add(-time.Minute))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("event outside window rejected", func(t *testing.T) {
		recs := []event.Record{record(t, event.TypeRecovery, base.Add(-time.Second), 0.9, 1)}
		_, err := b.Build(recs, base, base.Add(time.Minute))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("out of order events rejected", func(t *testing.T) {
		recs := []event.Record{
			record(t, event.TypeRecovery, base.Add(10*time.Second), 0.9, 1),
			record(t, event.TypeRecovery, base.Add(5*time.Second), 0.9, 2),
		}
		_, err := b.Build(recs, base, base.Add(time.Minute))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("empty window is valid", func(t *testing.T) {
		snap, err := b.Build(nil, base, base.Add(time.Minute))
		require.NoError(t, err)
		assert.NotEmpty(t, snap.ID)
		assert.Empty(t, snap.Hypotheses)
		assert.Contains(t, snap.Summary, "no events observed")
	})
}

func TestBuildDeterminism(t *testing.T) {
	b := NewBuilder(Config{})
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	recs := []event.Record{
		record(t, event.TypeRapidVerticalMovement, base.Add(2*time.Second), 0.9, 1),
		record(t, event.TypeLowPostureSustained, base.Add(6*time.Second), 0.8, 2),
	}

	first, err := b.Build(recs, base, base.Add(30*time.Second))
	require.NoError(t, err)
	second, err := b.Build(recs, base, base.Add(30*time.Second))
	require.NoError(t, err)

	t.Run("identical input yields byte-identical snapshots", func(t *testing.T) {
		a, err := json.Marshal(first)
		require.NoError(t, err)
		bts, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(bts))
	})

	t.Run("snapshot id is a pure function of window and event ids", func(t *testing.T) {
		assert.Equal(t, first.ID, second.ID)

		shifted, err := b.Build(recs, base, base.Add(31*time.Second))
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, shifted.ID, "a different window is a different snapshot")
	})

	t.Run("summary derives from structured fields only", func(t *testing.T) {
		assert.Equal(t, first.Summary, second.Summary)
		assert.Contains(t, first.Summary, "RAPID_VERTICAL_MOVEMENT=1")
		assert.Contains(t, first.Summary, "LOW_POSTURE_SUSTAINED=1")
	})
}

func TestBuildHypotheses(t *testing.T) {
	b := NewBuilder(Config{SustainReference: 30 * time.Second})
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	windowEnd := base.Add(60 * time.Second)

	t.Run("open low posture span scores immobility", func(t *testing.T) {
		recs := []event.Record{
			record(t, event.TypeLowPostureSustained, base.Add(15*time.Second), 0.8, 1),
		}
		snap, err := b.Build(recs, base, windowEnd)
		require.NoError(t, err)

		// 45s on the floor with no recovery saturates the 30s reference.
		h, ok := snap.Hypothesis(HypothesisImmobility)
		require.True(t, ok)
		assert.InDelta(t, 0.9, h.Confidence, 1e-9)
		assert.Equal(t, 45.0, snap.Pattern(PatternLowPostureDuration, 0))
	})

	t.Run("recovery closes the span and suppresses immobility", func(t *testing.T) {
		recs := []event.Record{
			record(t, event.TypeLowPostureSustained, base.Add(5*time.Second), 0.8, 1),
			record(t, event.TypeRecovery, base.Add(15*time.Second), 0.9, 2),
		}
		snap, err := b.Build(recs, base, windowEnd)
		require.NoError(t, err)

		_, ok := snap.Hypothesis(HypothesisImmobility)
		assert.False(t, ok, "a closed span is not ongoing immobility")

		h, ok := snap.Hypothesis(HypothesisRecovery)
		require.True(t, ok)
		assert.Equal(t, 0.9, h.Confidence)
		assert.Equal(t, 10.0, snap.Pattern(PatternLowPostureDuration, 0))
		assert.Equal(t, 45.0, snap.Pattern(PatternSecondsSinceRecovery, -1))
	})

	t.Run("composite fall dominates", func(t *testing.T) {
		rapid := record(t, event.TypeRapidVerticalMovement, base.Add(2*time.Second), 0.9, 1)
		low := record(t, event.TypeLowPostureSustained, base.Add(6*time.Second), 0.8, 2)
		fall := compositeRecord(t, event.TypePotentialFall, base.Add(6*time.Second), 0.8, []string{rapid.ID, low.ID}, 3)

		snap, err := b.Build([]event.Record{rapid, low, fall}, base, windowEnd)
		require.NoError(t, err)

		h, ok := snap.Hypothesis(HypothesisPossibleFall)
		require.True(t, ok)
		assert.Equal(t, 0.8, h.Confidence)
		assert.Contains(t, h.SupportingEventIDs, fall.ID)
		assert.Contains(t, h.SupportingEventIDs, rapid.ID)
		assert.Contains(t, h.SupportingEventIDs, low.ID)
	})

	t.Run("confirmed fall floors the confidence", func(t *testing.T) {
		low := record(t, event.TypeLowPostureSustained, base.Add(6*time.Second), 0.8, 1)
		confirmed := compositeRecord(t, event.TypeConfirmedFallByDuration, base.Add(31*time.Second), 0.8, []string{low.ID}, 2)

		snap, err := b.Build([]event.Record{low, confirmed}, base, windowEnd)
		require.NoError(t, err)

		h, ok := snap.Hypothesis(HypothesisPossibleFall)
		require.True(t, ok)
		assert.Equal(t, 0.95, h.Confidence)
	})

	t.Run("rapid movements score instability", func(t *testing.T) {
		recs := []event.Record{
			record(t, event.TypeRapidVerticalMovement, base.Add(1*time.Second), 0.9, 1),
			record(t, event.TypeRapidVerticalMovement, base.Add(5*time.Second), 0.9, 2),
		}
		snap, err := b.Build(recs, base, windowEnd)
		require.NoError(t, err)

		h, ok := snap.Hypothesis(HypothesisInstability)
		require.True(t, ok)
		assert.InDelta(t, 0.5, h.Confidence, 1e-9)
	})

	t.Run("hypotheses sorted by confidence", func(t *testing.T) {
		low := record(t, event.TypeLowPostureSustained, base.Add(5*time.Second), 0.8, 1)
		rapid := record(t, event.TypeRapidVerticalMovement, base.Add(6*time.Second), 0.9, 2)

		snap, err := b.Build([]event.Record{low, rapid}, base, windowEnd)
		require.NoError(t, err)
		require.NotEmpty(t, snap.Hypotheses)
		for i := 1; i < len(snap.Hypotheses); i++ {
			assert.GreaterOrEqual(t, snap.Hypotheses[i-1].Confidence, snap.Hypotheses[i].Confidence)
		}
	})
}
