package decision

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/snapshot"
)

var (
	// ErrRuleConflict indicates a rule set whose ordering is not total
	// (duplicate names). This is a configuration-time check, not a
	// runtime recoverable condition: the engine refuses to decide.
	ErrRuleConflict = errors.New("decision rule conflict")
	// ErrSnapshotInvalid indicates a malformed snapshot. The evaluation
	// fails and the caller's state is preserved; the engine never guesses.
	ErrSnapshotInvalid = errors.New("snapshot invalid")
)

// Thresholds holds the hysteresis parameters of the rule set. Escalation
// requires sustained evidence; downgrade requires confidence-qualified
// recovery, not merely its presence.
type Thresholds struct {
	EscalationSustain     time.Duration
	HighConfidence        float64
	BorderlineConfidence  float64
	RecoveryMinConfidence float64
}

// Outcome is what a matched rule produces.
type Outcome struct {
	Action    Action
	NextState State
	// Labels are the hypothesis labels that satisfied the rule.
	Labels []string
}

// Rule is an ordered, deterministic predicate over a snapshot and the
// current state. Declaration order is priority order; the first matching
// rule wins.
type Rule struct {
	Name  string
	Match func(s *snapshot.Snapshot, state State, t Thresholds) (Outcome, bool)
}

// Engine evaluates snapshots against an ordered rule set.
type Engine struct {
	rules      []Rule
	thresholds Thresholds
}

// NewEngine validates the rule set and constructs an engine. A rule set
// with duplicate names or without rules fails with ErrRuleConflict.
func NewEngine(rules []Rule, thresholds Thresholds) (*Engine, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: empty rule set", ErrRuleConflict)
	}
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: rule with empty name", ErrRuleConflict)
		}
		if r.Match == nil {
			return nil, fmt.Errorf("%w: rule %q without predicate", ErrRuleConflict, r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate rule name %q", ErrRuleConflict, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return &Engine{rules: rules, thresholds: thresholds}, nil
}

// NewDefaultEngine constructs the engine with the built-in rule set.
func NewDefaultEngine(thresholds Thresholds) (*Engine, error) {
	return NewEngine(DefaultRules(), thresholds)
}

// Evaluate applies the rules in order and returns the decision of the
// first match. The final rule always matches, so a valid snapshot always
// yields a decision. A malformed snapshot returns ErrSnapshotInvalid and
// the caller must keep its current state unchanged.
func (e *Engine) Evaluate(snap *snapshot.Snapshot, current State) (Decision, error) {
	if snap == nil {
		return Decision{}, fmt.Errorf("%w: nil snapshot", ErrSnapshotInvalid)
	}
	if err := snap.Validate(); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if current == "" {
		current = StateIdle
	}

	for _, rule := range e.rules {
		outcome, ok := rule.Match(snap, current, e.thresholds)
		if !ok {
			continue
		}
		rationale := append([]string{rule.Name}, outcome.Labels...)
		return Decision{
			SnapshotID:  snap.ID,
			Action:      outcome.Action,
			Rationale:   rationale,
			Timestamp:   snap.WindowEnd,
			StateBefore: current,
			StateAfter:  outcome.NextState,
		}, nil
	}

	// Unreachable with DefaultRules: the idle rule matches everything.
	return Decision{}, fmt.Errorf("%w: no rule matched snapshot %s", ErrRuleConflict, snap.ID)
}
