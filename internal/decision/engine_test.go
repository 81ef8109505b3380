package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
)

func testThresholds() Thresholds {
	return Thresholds{
		EscalationSustain:     30 * time.Second,
		HighConfidence:        0.75,
		BorderlineConfidence:  0.4,
		RecoveryMinConfidence: 0.6,
	}
}

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewDefaultEngine(testThresholds())
	require.NoError(t, err)
	return e
}

type snapOption func(*snapshot.Snapshot)

func withHypothesis(label string, confidence float64) snapOption {
	return func(s *snapshot.Snapshot) {
		s.Hypotheses = append(s.Hypotheses, snapshot.Hypothesis{
			Label: label, Confidence: confidence, SupportingEventIDs: []string{"ev-1"},
		})
	}
}

func withPattern(key string, value float64) snapOption {
	return func(s *snapshot.Snapshot) { s.TemporalPatterns[key] = value }
}

func withCounts(n int) snapOption {
	return func(s *snapshot.Snapshot) { s.EventCounts["LOW_POSTURE_SUSTAINED"] = n }
}

func testSnapshot(opts ...snapOption) *snapshot.Snapshot {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	s := &snapshot.Snapshot{
		ID:               "snap-1",
		WindowStart:      base,
		WindowEnd:        base.Add(time.Minute),
		EventCounts:      map[event.Type]int{},
		TemporalPatterns: map[string]float64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func TestEvaluateDefaultRules(t *testing.T) {
	e := defaultEngine(t)

	t.Run("sustained high confidence incident escalates", func(t *testing.T) {
		snap := testSnapshot(
			withCounts(1),
			withHypothesis(snapshot.HypothesisImmobility, 0.9),
			withPattern(snapshot.PatternLowPostureDuration, 45),
		)
		dec, err := e.Evaluate(snap, StateMonitoring)
		require.NoError(t, err)
		assert.Equal(t, ActionNotifyCaregiver, dec.Action)
		assert.Equal(t, StateEscalated, dec.StateAfter)
		assert.Equal(t, StateMonitoring, dec.StateBefore)
		assert.Equal(t, "escalate_sustained_incident", dec.Rationale[0])
		assert.Contains(t, dec.Rationale, snapshot.HypothesisImmobility)
	})

	t.Run("high confidence without sustain does not escalate", func(t *testing.T) {
		snap := testSnapshot(
			withCounts(1),
			withHypothesis(snapshot.HypothesisPossibleFall, 0.9),
			withPattern(snapshot.PatternLowPostureDuration, 10),
		)
		dec, err := e.Evaluate(snap, StateIdle)
		require.NoError(t, err)
		assert.Equal(t, ActionRequestConfirmation, dec.Action)
		assert.Equal(t, StateAwaitingConfirmation, dec.StateAfter)
	})

	t.Run("qualified recovery blocks escalation", func(t *testing.T) {
		snap := testSnapshot(
			withCounts(3),
			withHypothesis(snapshot.HypothesisPossibleFall, 0.9),
			withPattern(snapshot.PatternLowPostureDuration, 45),
			withPattern(snapshot.PatternSecondsSinceRecovery, 5),
			withPattern(snapshot.PatternRecoveryConfidence, 0.9),
		)
		dec, err := e.Evaluate(snap, StateMonitoring)
		require.NoError(t, err)
		assert.NotEqual(t, StateEscalated, dec.StateAfter)
		assert.Equal(t, ActionMonitor, dec.Action)
		assert.Equal(t, StateMonitoring, dec.StateAfter)
		assert.Equal(t, "downgrade_qualified_recovery", dec.Rationale[0])
	})

	t.Run("unqualified recovery does not downgrade", func(t *testing.T) {
		snap := testSnapshot(
			withCounts(3),
			withHypothesis(snapshot.HypothesisPossibleFall, 0.9),
			withPattern(snapshot.PatternLowPostureDuration, 45),
			withPattern(snapshot.PatternSecondsSinceRecovery, 5),
			withPattern(snapshot.PatternRecoveryConfidence, 0.3),
		)
		dec, err := e.Evaluate(snap, StateEscalated)
		require.NoError(t, err)
		assert.Equal(t, ActionNotifyCaregiver, dec.Action)
		assert.Equal(t, StateEscalated, dec.StateAfter)
	})

	t.Run("qualified recovery with weak residual incident goes idle", func(t *testing.T) {
		snap := testSnapshot(
			withCounts(2),
			withHypothesis(snapshot.HypothesisInstability, 0.3),
			withPattern(snapshot.PatternSecondsSinceRecovery, 5),
			withPattern(snapshot.PatternRecoveryConfidence, 0.9),
		)
		dec, err := e.Evaluate(snap, StateAwaitingConfirmation)
		require.NoError(t, err)
		assert.Equal(t, ActionIgnore, dec.Action)
		assert.Equal(t, StateIdle, dec.StateAfter)
	})

	t.Run("routine activity monitors", func(t *testing.T) {
		snap := testSnapshot(withCounts(2))
		dec, err := e.Evaluate(snap, StateIdle)
		require.NoError(t, err)
		assert.Equal(t, ActionMonitor, dec.Action)
		assert.Equal(t, StateMonitoring, dec.StateAfter)
	})

	t.Run("empty window idles", func(t *testing.T) {
		snap := testSnapshot()
		dec, err := e.Evaluate(snap, StateMonitoring)
		require.NoError(t, err)
		assert.Equal(t, ActionIgnore, dec.Action)
		assert.Equal(t, StateIdle, dec.StateAfter)
		assert.Equal(t, []string{"idle_quiet"}, dec.Rationale)
	})

	t.Run("decision timestamp is the window end", func(t *testing.T) {
		snap := testSnapshot(withCounts(1))
		dec, err := e.Evaluate(snap, StateIdle)
		require.NoError(t, err)
		assert.Equal(t, snap.WindowEnd, dec.Timestamp)
	})

	t.Run("evaluation is deterministic", func(t *testing.T) {
		snap := testSnapshot(
			withCounts(1),
			withHypothesis(snapshot.HypothesisImmobility, 0.9),
			withPattern(snapshot.PatternLowPostureDuration, 45),
		)
		first, err := e.Evaluate(snap, StateMonitoring)
		require.NoError(t, err)
		second, err := e.Evaluate(snap, StateMonitoring)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestEvaluateInvalidSnapshot(t *testing.T) {
	e := defaultEngine(t)

	t.Run("nil snapshot", func(t *testing.T) {
		_, err := e.Evaluate(nil, StateMonitoring)
		assert.ErrorIs(t, err, ErrSnapshotInvalid)
	})

	t.Run("missing id", func(t *testing.T) {
		snap := testSnapshot()
		snap.ID = ""
		_, err := e.Evaluate(snap, StateMonitoring)
		assert.ErrorIs(t, err, ErrSnapshotInvalid)
	})

	t.Run("inverted window", func(t *testing.T) {
		snap := testSnapshot()
		snap.WindowStart = snap.WindowEnd.Add(time.Hour)
		_, err := e.Evaluate(snap, StateMonitoring)
		assert.ErrorIs(t, err, ErrSnapshotInvalid)
	})
}

func TestNewEngine(t *testing.T) {
	rule := Rule{Name: "always", Match: matchQuiet}

	t.Run("empty rule set rejected", func(t *testing.T) {
		_, err := NewEngine(nil, testThresholds())
		assert.ErrorIs(t, err, ErrRuleConflict)
	})

	t.Run("duplicate names rejected", func(t *testing.T) {
		_, err := NewEngine([]Rule{rule, rule}, testThresholds())
		assert.ErrorIs(t, err, ErrRuleConflict)
	})

	t.Run("unnamed rule rejected", func(t *testing.T) {
		_, err := NewEngine([]Rule{{Match: matchQuiet}}, testThresholds())
		assert.ErrorIs(t, err, ErrRuleConflict)
	})

	t.Run("rule without predicate rejected", func(t *testing.T) {
		_, err := NewEngine([]Rule{{Name: "ghost"}}, testThresholds())
		assert.ErrorIs(t, err, ErrRuleConflict)
	})
}
