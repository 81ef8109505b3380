// Package config provides configuration loading for vigild.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/vigild/internal/logging"
)

// Config is the immutable configuration structure constructed once at
// process start and passed by reference into each component. There is no
// ambient global state.
type Config struct {
	Engine     EngineConfig      `koanf:"engine"`
	EventTypes []EventTypeConfig `koanf:"event_types"`
	Patterns   []PatternConfig   `koanf:"patterns"`
	Store      StoreConfig       `koanf:"store"`
	Snapshot   SnapshotConfig    `koanf:"snapshot"`
	Decision   DecisionConfig    `koanf:"decision"`
	Advisory   AdvisoryConfig    `koanf:"advisory"`
	Server     ServerConfig      `koanf:"server"`
	Signals    SignalsConfig     `koanf:"signals"`
	Logging    logging.Config    `koanf:"logging"`
}

// EngineConfig holds classification thresholds.
type EngineConfig struct {
	// MotionThreshold is the normalized vertical displacement above which a
	// RAPID_VERTICAL_MOVEMENT event is classified.
	MotionThreshold float64 `koanf:"motion_threshold"`
	// MotionCooldown suppresses repeated rapid-movement events.
	MotionCooldown Duration `koanf:"motion_cooldown"`
	// StillCooldown is how long motion must be absent before MOTION_STOPPED.
	StillCooldown Duration `koanf:"still_cooldown"`
	// MotionScoreThreshold is the activity score above which the subject
	// counts as moving.
	MotionScoreThreshold float64 `koanf:"motion_score_threshold"`
	// ImmobileMilestones trigger IMMOBILE_UPDATE events at increasing
	// stillness durations.
	ImmobileMilestones []Duration `koanf:"immobile_milestones"`
	// LowPostureSustain is how long a low posture must persist before a
	// LOW_POSTURE_SUSTAINED event is classified.
	LowPostureSustain Duration `koanf:"low_posture_sustain"`
	// FallConfirmSustain is the on-floor duration past which a
	// CONFIRMED_FALL_BY_DURATION composite is emitted.
	FallConfirmSustain Duration `koanf:"fall_confirm_sustain"`
	// ReorderWindow bounds out-of-order signal arrival.
	ReorderWindow Duration `koanf:"reorder_window"`
	// QueueSize bounds the signal intake queue (backpressure policy:
	// drop with diagnostic when full).
	QueueSize int `koanf:"queue_size"`
}

// EventTypeConfig adds an event type to the built-in vocabulary. Custom
// types can then appear in pattern declarations and in incoming signals.
type EventTypeConfig struct {
	Name     string `koanf:"name"`
	Category string `koanf:"category"` // motion | posture | spatial | interaction | composite | system
	Severity string `koanf:"severity"` // low | medium | high (default medium)
}

// PatternConfig declares a composite pattern for the event composer.
type PatternConfig struct {
	Name          string   `koanf:"name"`
	RequiredTypes []string `koanf:"required_types"`
	Ordered       bool     `koanf:"ordered"`
	MaxElapsed    Duration `koanf:"max_elapsed"`
	MinConfidence float64  `koanf:"min_confidence"`
	EmitType      string   `koanf:"emit_type"`
}

// StoreConfig selects and tunes the event store backend.
type StoreConfig struct {
	Backend      string   `koanf:"backend"` // sqlite | memory
	Path         string   `koanf:"path"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// SnapshotConfig tunes the analysis snapshot builder and the evaluation
// trigger.
type SnapshotConfig struct {
	Window       Duration `koanf:"window"`
	EvalInterval Duration `koanf:"eval_interval"`
	StateType    string   `koanf:"state_type"`
	RecoveryType string   `koanf:"recovery_type"`
}

// DecisionConfig holds the hysteresis thresholds of the decision rules.
type DecisionConfig struct {
	// EscalationSustain is the minimum sustained low-posture duration
	// before escalation to NOTIFY_CAREGIVER is allowed.
	EscalationSustain Duration `koanf:"escalation_sustain"`
	// HighConfidence qualifies a hypothesis for escalation.
	HighConfidence float64 `koanf:"high_confidence"`
	// BorderlineConfidence is the lower bound of the band that maps to
	// REQUEST_CONFIRMATION.
	BorderlineConfidence float64 `koanf:"borderline_confidence"`
	// RecoveryMinConfidence qualifies a recovery signal to downgrade.
	RecoveryMinConfidence float64 `koanf:"recovery_min_confidence"`
	// AuditPath is the JSONL decision audit sink.
	AuditPath string `koanf:"audit_path"`
}

// AdvisoryConfig configures the optional, non-authoritative LLM reader.
type AdvisoryConfig struct {
	Enabled bool     `koanf:"enabled"`
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// ServerConfig configures the read-only inspection HTTP server.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig configures the NATS signal source.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// SignalsConfig selects the signal source.
type SignalsConfig struct {
	Source   string     `koanf:"source"` // nats | spool | file
	Stream   string     `koanf:"stream"`
	NATS     NATSConfig `koanf:"nats"`
	SpoolDir string     `koanf:"spool_dir"`
	File     string     `koanf:"file"`
}

// Validate checks the configuration for consistency. Invalid composite
// pattern or threshold declarations are configuration-time errors, never
// runtime surprises.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if c.Engine.MotionThreshold <= 0 {
		return fmt.Errorf("engine.motion_threshold must be > 0, got %v", c.Engine.MotionThreshold)
	}
	if c.Engine.ReorderWindow.Duration() < 0 {
		return fmt.Errorf("engine.reorder_window cannot be negative")
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be > 0, got %d", c.Engine.QueueSize)
	}

	for i, et := range c.EventTypes {
		if et.Name == "" {
			return fmt.Errorf("event_types[%d]: name cannot be empty", i)
		}
		switch et.Category {
		case "motion", "posture", "spatial", "interaction", "composite", "system":
		default:
			return fmt.Errorf("event_types[%d] %q: unknown category %q", i, et.Name, et.Category)
		}
		switch et.Severity {
		case "", "low", "medium", "high":
		default:
			return fmt.Errorf("event_types[%d] %q: unknown severity %q", i, et.Name, et.Severity)
		}
	}

	seen := make(map[string]bool, len(c.Patterns))
	for i, p := range c.Patterns {
		if p.Name == "" {
			return fmt.Errorf("patterns[%d]: name cannot be empty", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("patterns[%d]: duplicate pattern name %q", i, p.Name)
		}
		seen[p.Name] = true
		if len(p.RequiredTypes) == 0 {
			return fmt.Errorf("pattern %q: required_types cannot be empty", p.Name)
		}
		if p.MaxElapsed.Duration() <= 0 {
			return fmt.Errorf("pattern %q: max_elapsed must be > 0", p.Name)
		}
		if p.MinConfidence < 0 || p.MinConfidence > 1 {
			return fmt.Errorf("pattern %q: min_confidence %v outside [0,1]", p.Name, p.MinConfidence)
		}
		if p.EmitType == "" {
			return fmt.Errorf("pattern %q: emit_type cannot be empty", p.Name)
		}
	}

	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend must be 'sqlite' or 'memory', got %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite backend")
	}
	if c.Store.MaxRetries < 0 {
		return fmt.Errorf("store.max_retries cannot be negative")
	}

	if c.Snapshot.Window.Duration() <= 0 {
		return fmt.Errorf("snapshot.window must be > 0")
	}
	if c.Snapshot.EvalInterval.Duration() <= 0 {
		return fmt.Errorf("snapshot.eval_interval must be > 0")
	}

	d := c.Decision
	if d.EscalationSustain.Duration() <= 0 {
		return fmt.Errorf("decision.escalation_sustain must be > 0")
	}
	for name, v := range map[string]float64{
		"decision.high_confidence":         d.HighConfidence,
		"decision.borderline_confidence":   d.BorderlineConfidence,
		"decision.recovery_min_confidence": d.RecoveryMinConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %v outside [0,1]", name, v)
		}
	}
	if d.BorderlineConfidence >= d.HighConfidence {
		return fmt.Errorf("decision.borderline_confidence %v must be below high_confidence %v",
			d.BorderlineConfidence, d.HighConfidence)
	}

	if c.Advisory.Enabled {
		if c.Advisory.Model == "" {
			return fmt.Errorf("advisory.model is required when advisory is enabled")
		}
		if c.Advisory.Timeout.Duration() <= 0 {
			return fmt.Errorf("advisory.timeout must be > 0 when advisory is enabled")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port %d outside (0,65535]", c.Server.Port)
	}

	switch c.Signals.Source {
	case "nats", "spool", "file":
	default:
		return fmt.Errorf("signals.source must be 'nats', 'spool' or 'file', got %q", c.Signals.Source)
	}
	if c.Signals.Source == "nats" && c.Signals.NATS.Subject == "" {
		return fmt.Errorf("signals.nats.subject is required for the nats source")
	}
	if c.Signals.Source == "spool" && c.Signals.SpoolDir == "" {
		return fmt.Errorf("signals.spool_dir is required for the spool source")
	}
	if c.Signals.Source == "file" && c.Signals.File == "" {
		return fmt.Errorf("signals.file is required for the file source")
	}

	return nil
}
