package event

import (
	"errors"
	"fmt"
	"time"
)

// ErrSignalRejected indicates a malformed or out-of-range signal. Rejected
// signals are dropped with a diagnostic and never halt the pipeline.
var ErrSignalRejected = errors.New("signal rejected")

// SignalKind identifies the physical quantity a signal carries.
type SignalKind string

const (
	// KindVerticalDisplacement carries normalized vertical displacement of
	// the tracked body center since the previous observation (positive is
	// downward).
	KindVerticalDisplacement SignalKind = "vertical_displacement"
	// KindMotionScore carries a scalar motion activity score.
	KindMotionScore SignalKind = "motion_score"
	// KindPosture carries a discrete posture label in Posture.
	KindPosture SignalKind = "posture"
)

// Posture labels carried by KindPosture signals.
const (
	PostureStanding = "STANDING"
	PostureOnFloor  = "ON_FLOOR"
)

// Signal is a timestamped atomic observation from the signal adapter. The
// core never assumes a specific acquisition transport.
type Signal struct {
	Stream     string            `json:"stream"`
	Kind       SignalKind        `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Value      float64           `json:"value"`
	Posture    string            `json:"posture,omitempty"`
	Confidence float64           `json:"confidence"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// Validate rejects malformed signals before classification.
func (s Signal) Validate() error {
	if s.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrSignalRejected)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrSignalRejected)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrSignalRejected, s.Confidence)
	}
	if s.Kind == KindPosture && s.Posture == "" {
		return fmt.Errorf("%w: posture signal without posture label", ErrSignalRejected)
	}
	return nil
}
