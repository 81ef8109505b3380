package decision

import (
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
)

// DefaultRules returns the built-in ordered rule set. Order is priority:
// escalation first, then recovery downgrade, then the confirmation band,
// then routine monitoring, then quiet idle. The last rule matches
// unconditionally so every valid snapshot decides.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "escalate_sustained_incident", Match: matchEscalate},
		{Name: "downgrade_qualified_recovery", Match: matchRecoveryDowngrade},
		{Name: "request_confirmation_borderline", Match: matchBorderline},
		{Name: "monitor_activity", Match: matchActivity},
		{Name: "idle_quiet", Match: matchQuiet},
	}
}

// incidentHypotheses returns the active incident hypotheses and the
// strongest confidence among them.
func incidentHypotheses(s *snapshot.Snapshot) ([]string, float64) {
	var labels []string
	var strongest float64
	for _, label := range []string{snapshot.HypothesisPossibleFall, snapshot.HypothesisImmobility} {
		if h, ok := s.Hypothesis(label); ok {
			labels = append(labels, h.Label)
			if h.Confidence > strongest {
				strongest = h.Confidence
			}
		}
	}
	return labels, strongest
}

// qualifiedRecovery reports whether a recovery signal was observed and is
// itself confidence-qualified. Mere presence is not enough to downgrade.
func qualifiedRecovery(s *snapshot.Snapshot, t Thresholds) bool {
	if s.Pattern(snapshot.PatternSecondsSinceRecovery, -1) < 0 {
		return false
	}
	return s.Pattern(snapshot.PatternRecoveryConfidence, 0) >= t.RecoveryMinConfidence
}

// matchEscalate upgrades to ESCALATED only on a high-confidence incident
// hypothesis with a sustained low-posture duration and no qualifying
// recovery. The sustain requirement is the hysteresis that suppresses
// transient false positives.
func matchEscalate(s *snapshot.Snapshot, _ State, t Thresholds) (Outcome, bool) {
	labels, confidence := incidentHypotheses(s)
	if len(labels) == 0 || confidence < t.HighConfidence {
		return Outcome{}, false
	}
	if s.Pattern(snapshot.PatternLowPostureDuration, 0) < t.EscalationSustain.Seconds() {
		return Outcome{}, false
	}
	if qualifiedRecovery(s, t) {
		return Outcome{}, false
	}
	return Outcome{
		Action:    ActionNotifyCaregiver,
		NextState: StateEscalated,
		Labels:    labels,
	}, true
}

// matchRecoveryDowngrade moves an engaged state machine back toward
// MONITORING or IDLE when a confidence-qualified recovery is observed.
func matchRecoveryDowngrade(s *snapshot.Snapshot, state State, t Thresholds) (Outcome, bool) {
	switch state {
	case StateMonitoring, StateAwaitingConfirmation, StateEscalated:
	default:
		return Outcome{}, false
	}
	if !qualifiedRecovery(s, t) {
		return Outcome{}, false
	}

	labels, confidence := incidentHypotheses(s)
	labels = append(labels, snapshot.HypothesisRecovery)
	if confidence >= t.BorderlineConfidence {
		return Outcome{Action: ActionMonitor, NextState: StateMonitoring, Labels: labels}, true
	}
	return Outcome{Action: ActionIgnore, NextState: StateIdle, Labels: labels}, true
}

// matchBorderline maps incident confidence above the borderline cutoff
// but without the sustained duration required for escalation to
// REQUEST_CONFIRMATION, avoiding false positives.
func matchBorderline(s *snapshot.Snapshot, _ State, t Thresholds) (Outcome, bool) {
	labels, confidence := incidentHypotheses(s)
	if len(labels) == 0 || confidence < t.BorderlineConfidence {
		return Outcome{}, false
	}
	if qualifiedRecovery(s, t) {
		return Outcome{}, false
	}
	return Outcome{
		Action:    ActionRequestConfirmation,
		NextState: StateAwaitingConfirmation,
		Labels:    labels,
	}, true
}

// matchActivity keeps the stream under routine observation when anything
// at all happened in the window.
func matchActivity(s *snapshot.Snapshot, _ State, _ Thresholds) (Outcome, bool) {
	total := 0
	for _, n := range s.EventCounts {
		total += n
	}
	if total == 0 {
		return Outcome{}, false
	}
	var labels []string
	for _, h := range s.Hypotheses {
		labels = append(labels, h.Label)
	}
	return Outcome{Action: ActionMonitor, NextState: StateMonitoring, Labels: labels}, true
}

// matchQuiet is the unconditional fallback for an empty window.
func matchQuiet(_ *snapshot.Snapshot, _ State, _ Thresholds) (Outcome, bool) {
	return Outcome{Action: ActionIgnore, NextState: StateIdle}, true
}
