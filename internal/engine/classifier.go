// Package engine classifies atomic signals into behavioral events and
// composes atomic events into higher-order composite events via
// time-windowed pattern rules.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/logging"
)

// Config holds classification thresholds. All rules are deterministic
// predicates: a signal below threshold produces no event (silent drop).
type Config struct {
	MotionThreshold      float64
	MotionCooldown       time.Duration
	StillCooldown        time.Duration
	MotionScoreThreshold float64
	ImmobileMilestones   []time.Duration
	LowPostureSustain    time.Duration
	// FallConfirmSustain is the on-floor duration past which a low-posture
	// span is confirmed as a fall regardless of how it started.
	FallConfirmSustain time.Duration
}

type motionState int

const (
	motionStill motionState = iota
	motionMoving
)

// Classifier maps timestamped signals to zero-or-one atomic event each.
// It carries per-stream state (motion state machine, posture tracking) and
// is driven forward-only by the pipeline after the reorder buffer, so it
// never needs to re-evaluate the past.
type Classifier struct {
	cfg Config
	log *logging.Logger

	// motion state machine
	state          motionState
	lastMotionTime time.Time
	stateStart     time.Time
	emitted        map[time.Duration]struct{}

	// rapid vertical movement cooldown
	lastRapidTime time.Time

	// posture tracking
	floorEnter     time.Time
	onFloor        bool
	lowEmitted     bool
	lowEventID     string
	confirmEmitted bool
}

// NewClassifier creates a classifier for a single monitored stream.
func NewClassifier(cfg Config, log *logging.Logger) *Classifier {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.FallConfirmSustain <= 0 {
		cfg.FallConfirmSustain = 25 * time.Second
	}
	return &Classifier{
		cfg:     cfg,
		log:     log.Named("classifier"),
		emitted: make(map[time.Duration]struct{}),
	}
}

// Classify maps a signal to zero-or-one atomic event. A malformed signal
// returns a wrapped event.ErrSignalRejected; it never halts the engine for
// subsequent signals. A valid signal below threshold returns (nil, nil).
func (c *Classifier) Classify(ctx context.Context, sig event.Signal) (*event.Event, error) {
	if err := sig.Validate(); err != nil {
		SignalsRejected.Inc()
		c.log.Warn(ctx, "signal rejected",
			zap.String("kind", string(sig.Kind)),
			zap.Error(err),
		)
		return nil, err
	}

	var ev *event.Event
	var err error
	switch sig.Kind {
	case event.KindVerticalDisplacement:
		ev, err = c.classifyVertical(sig)
	case event.KindMotionScore:
		ev, err = c.classifyMotion(sig)
	case event.KindPosture:
		ev, err = c.classifyPosture(sig)
	default:
		SignalsRejected.Inc()
		return nil, fmt.Errorf("%w: unknown kind %q", event.ErrSignalRejected, sig.Kind)
	}
	if err != nil {
		return nil, err
	}
	if ev != nil {
		if ev.IsComposite() {
			EventsComposed.WithLabelValues(ev.PatternName).Inc()
		} else {
			EventsClassified.WithLabelValues(string(ev.Type)).Inc()
		}
	}
	return ev, nil
}

// classifyVertical emits RAPID_VERTICAL_MOVEMENT when the normalized
// displacement crosses the motion threshold, subject to a cooldown.
func (c *Classifier) classifyVertical(sig event.Signal) (*event.Event, error) {
	dy := sig.Value
	if dy <= c.cfg.MotionThreshold {
		return nil, nil
	}
	if !c.lastRapidTime.IsZero() && sig.Timestamp.Sub(c.lastRapidTime) < c.cfg.MotionCooldown {
		return nil, nil
	}
	c.lastRapidTime = sig.Timestamp

	confidence := dy / (c.cfg.MotionThreshold * 2)
	if confidence > 1 {
		confidence = 1
	}
	ev, err := event.NewAtomic(event.TypeRapidVerticalMovement, sig.Timestamp, confidence, sig.Stream, map[string]string{
		"vertical_displacement": fmt.Sprintf("%.3f", dy),
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// classifyMotion runs the STILL/MOVING state machine over motion scores:
// MOTION_STARTED on the still-to-moving edge, MOTION_STOPPED once the
// still cooldown elapses, IMMOBILE_UPDATE at configured milestones while
// still.
func (c *Classifier) classifyMotion(sig event.Signal) (*event.Event, error) {
	moving := sig.Value > c.cfg.MotionScoreThreshold
	now := sig.Timestamp

	if c.stateStart.IsZero() {
		c.stateStart = now
	}

	if moving {
		c.lastMotionTime = now
		if c.state == motionStill {
			c.state = motionMoving
			c.stateStart = now
			clear(c.emitted)
			return c.atomic(event.TypeMotionStarted, now, sig.Confidence, sig.Stream, nil)
		}
		return nil, nil
	}

	if c.state == motionMoving {
		if now.Sub(c.lastMotionTime) > c.cfg.StillCooldown {
			c.state = motionStill
			c.stateStart = now
			clear(c.emitted)
			return c.atomic(event.TypeMotionStopped, now, sig.Confidence, sig.Stream, nil)
		}
		return nil, nil
	}

	// Still: check immobility milestones, emitting each at most once per
	// still session. When several pass between two signals, only the
	// largest newly passed one is emitted.
	stillFor := now.Sub(c.stateStart)
	var hit time.Duration
	for _, m := range c.cfg.ImmobileMilestones {
		if stillFor >= m {
			if _, done := c.emitted[m]; !done {
				hit = m
			}
		}
	}
	if hit == 0 {
		return nil, nil
	}
	for _, m := range c.cfg.ImmobileMilestones {
		if m <= hit {
			c.emitted[m] = struct{}{}
		}
	}
	return c.atomic(event.TypeImmobileUpdate, now, sig.Confidence, sig.Stream, map[string]string{
		"milestone_seconds": fmt.Sprintf("%.0f", hit.Seconds()),
		"still_seconds":     fmt.Sprintf("%.1f", stillFor.Seconds()),
	})
}

// classifyPosture tracks low-posture spans: LOW_POSTURE_SUSTAINED once a
// low posture persists past the sustain threshold,
// CONFIRMED_FALL_BY_DURATION once it persists past the confirmation
// threshold, RECOVERY when the subject leaves the floor afterwards.
func (c *Classifier) classifyPosture(sig event.Signal) (*event.Event, error) {
	now := sig.Timestamp

	if sig.Posture == event.PostureOnFloor {
		if !c.onFloor {
			c.onFloor = true
			c.floorEnter = now
			c.lowEmitted = false
			c.confirmEmitted = false
			c.lowEventID = ""
			return nil, nil
		}
		if !c.lowEmitted && now.Sub(c.floorEnter) >= c.cfg.LowPostureSustain {
			c.lowEmitted = true
			ev, err := c.atomic(event.TypeLowPostureSustained, now, sig.Confidence, sig.Stream, map[string]string{
				"on_floor_seconds": fmt.Sprintf("%.1f", now.Sub(c.floorEnter).Seconds()),
			})
			if err != nil {
				return nil, err
			}
			c.lowEventID = ev.ID
			return ev, nil
		}
		if c.lowEmitted && !c.confirmEmitted && now.Sub(c.floorEnter) >= c.cfg.FallConfirmSustain {
			c.confirmEmitted = true
			ev, err := event.NewComposite(event.TypeConfirmedFallByDuration, "duration_confirmation",
				now, 0.95, []string{c.lowEventID})
			if err != nil {
				return nil, err
			}
			ev.SourceRef = sig.Stream
			ev.Metadata = map[string]string{
				"on_floor_seconds": fmt.Sprintf("%.1f", now.Sub(c.floorEnter).Seconds()),
			}
			return &ev, nil
		}
		return nil, nil
	}

	// Upright again.
	if c.onFloor {
		wasLow := c.lowEmitted
		c.onFloor = false
		c.lowEmitted = false
		c.confirmEmitted = false
		c.lowEventID = ""
		if wasLow {
			return c.atomic(event.TypeRecovery, now, sig.Confidence, sig.Stream, nil)
		}
	}
	return nil, nil
}

func (c *Classifier) atomic(t event.Type, ts time.Time, confidence float64, stream string, md map[string]string) (*event.Event, error) {
	ev, err := event.NewAtomic(t, ts, confidence, stream, md)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
