// Package decision implements the deterministic finite-state decision
// engine. It consumes analysis snapshots and produces auditable decisions;
// no probabilistic or generative component has authority over the action.
package decision

import (
	"time"
)

// State of the per-stream decision state machine. There is no terminal
// state: the engine is a long-running control loop.
type State string

const (
	StateIdle                 State = "IDLE"
	StateMonitoring           State = "MONITORING"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateEscalated            State = "ESCALATED"
)

// Action recommended by an evaluation. Actions are recommendations;
// delivery is out of scope.
type Action string

const (
	ActionIgnore              Action = "IGNORE"
	ActionMonitor             Action = "MONITOR"
	ActionRequestConfirmation Action = "REQUEST_CONFIRMATION"
	ActionNotifyCaregiver     Action = "NOTIFY_CAREGIVER"
)

// Decision is the immutable, auditable outcome of one evaluation. Its
// timestamp is the snapshot's window end, never the wall clock, so replay
// reproduces it exactly.
type Decision struct {
	SnapshotID  string    `json:"snapshot_id"`
	Action      Action    `json:"action"`
	Rationale   []string  `json:"rationale"`
	Timestamp   time.Time `json:"timestamp"`
	StateBefore State     `json:"decision_state_before"`
	StateAfter  State     `json:"decision_state_after"`
}
