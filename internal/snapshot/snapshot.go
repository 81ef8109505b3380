// Package snapshot builds deterministic analysis snapshots over bounded
// event windows. Build is a pure function of its inputs: no hidden state,
// no randomness, no wall-clock reads, so replaying the same window always
// yields a byte-identical snapshot.
package snapshot

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// ErrInvalid indicates an inverted window or an event sequence that does
// not belong to the declared window. The caller must not guess.
var ErrInvalid = errors.New("snapshot invalid")

// Temporal pattern keys.
const (
	PatternLowPostureDuration   = "low_posture_duration_seconds"
	PatternSecondsSinceRecovery = "seconds_since_recovery"
	PatternRecoveryConfidence   = "recovery_confidence"
)

// Hypothesis labels, in declaration (priority) order.
const (
	HypothesisPossibleFall = "possible_fall"
	HypothesisImmobility   = "immobility"
	HypothesisInstability  = "instability"
	HypothesisRecovery     = "recovery"
)

// Hypothesis is a scored, evidence-backed candidate interpretation.
type Hypothesis struct {
	Label              string   `json:"label"`
	Confidence         float64  `json:"confidence"`
	SupportingEventIDs []string `json:"supporting_event_ids"`
}

// Snapshot is the structured narrative over a bounded event window.
// Immutable once built; built fresh per evaluation.
type Snapshot struct {
	ID               string             `json:"snapshot_id"`
	WindowStart      time.Time          `json:"window_start"`
	WindowEnd        time.Time          `json:"window_end"`
	EventCounts      map[event.Type]int `json:"event_counts_by_type"`
	TemporalPatterns map[string]float64 `json:"temporal_patterns"`
	Hypotheses       []Hypothesis       `json:"hypotheses"`
	Summary          string             `json:"human_readable_summary"`
}

// Hypothesis returns the hypothesis with the given label, or false.
func (s *Snapshot) Hypothesis(label string) (Hypothesis, bool) {
	for _, h := range s.Hypotheses {
		if h.Label == label {
			return h, true
		}
	}
	return Hypothesis{}, false
}

// Pattern returns a temporal pattern value, or the fallback when absent.
func (s *Snapshot) Pattern(key string, fallback float64) float64 {
	if v, ok := s.TemporalPatterns[key]; ok {
		return v
	}
	return fallback
}

// Validate checks the window contract.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot without id")
	}
	if s.WindowStart.After(s.WindowEnd) {
		return errors.New("window_start after window_end")
	}
	return nil
}
