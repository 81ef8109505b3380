package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/vigild/internal/logging"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	envPrefix         = "VIGILD_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VIGILD_DECISION_ESCALATION_SUSTAIN, ...)
//  2. YAML config file (~/.config/vigild/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/vigild/config.yaml is used.
//
// The config file must have 0600 or 0400 permissions and stay under 1MB;
// anything weaker or larger is rejected on load.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "vigild", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables use underscore separator and are uppercased
	// with a VIGILD_ prefix:
	//   VIGILD_STORE_PATH            -> store.path
	//   VIGILD_DECISION_HIGH_CONFIDENCE -> decision.high_confidence
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		// section.field_name: split on the first underscore only,
		// field names keep their underscores.
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the vigild config directory if it doesn't exist.
// The directory is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "vigild")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip the permission check on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
// Threshold values without a documented source in the original heuristics
// were chosen deliberately and conservatively: escalation requires
// sustained evidence, downgrade requires confidence-qualified recovery.
func applyDefaults(cfg *Config) {
	// Logging defaults. An empty format means the section was absent;
	// a set level or constant fields survive the defaulting.
	if cfg.Logging.Format == "" {
		def := logging.NewDefaultConfig()
		def.Level = cfg.Logging.Level
		def.Fields = cfg.Logging.Fields
		cfg.Logging = *def
	}

	// Engine defaults
	if cfg.Engine.MotionThreshold == 0 {
		cfg.Engine.MotionThreshold = 0.18
	}
	if cfg.Engine.MotionCooldown == 0 {
		cfg.Engine.MotionCooldown = Duration(2 * time.Second)
	}
	if cfg.Engine.StillCooldown == 0 {
		cfg.Engine.StillCooldown = Duration(2 * time.Second)
	}
	if cfg.Engine.MotionScoreThreshold == 0 {
		cfg.Engine.MotionScoreThreshold = 500
	}
	if len(cfg.Engine.ImmobileMilestones) == 0 {
		cfg.Engine.ImmobileMilestones = []Duration{
			Duration(5 * time.Second),
			Duration(10 * time.Second),
			Duration(30 * time.Second),
			Duration(60 * time.Second),
		}
	}
	if cfg.Engine.LowPostureSustain == 0 {
		cfg.Engine.LowPostureSustain = Duration(3 * time.Second)
	}
	if cfg.Engine.FallConfirmSustain == 0 {
		cfg.Engine.FallConfirmSustain = Duration(25 * time.Second)
	}
	if cfg.Engine.ReorderWindow == 0 {
		cfg.Engine.ReorderWindow = Duration(500 * time.Millisecond)
	}
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = 1024
	}

	// Default composite pattern: rapid vertical movement followed by a
	// sustained low posture within 5 seconds is a potential fall.
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = []PatternConfig{
			{
				Name:          "potential_fall",
				RequiredTypes: []string{"RAPID_VERTICAL_MOVEMENT", "LOW_POSTURE_SUSTAINED"},
				Ordered:       true,
				MaxElapsed:    Duration(5 * time.Second),
				EmitType:      "POTENTIAL_FALL",
			},
		}
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = "~/.local/share/vigild/events.db"
	}
	if cfg.Store.MaxRetries == 0 {
		cfg.Store.MaxRetries = 3
	}
	if cfg.Store.RetryBackoff == 0 {
		cfg.Store.RetryBackoff = Duration(100 * time.Millisecond)
	}

	// Snapshot defaults
	if cfg.Snapshot.Window == 0 {
		cfg.Snapshot.Window = Duration(30 * time.Second)
	}
	if cfg.Snapshot.EvalInterval == 0 {
		cfg.Snapshot.EvalInterval = Duration(10 * time.Second)
	}
	if cfg.Snapshot.StateType == "" {
		cfg.Snapshot.StateType = "LOW_POSTURE_SUSTAINED"
	}
	if cfg.Snapshot.RecoveryType == "" {
		cfg.Snapshot.RecoveryType = "RECOVERY"
	}

	// Decision defaults
	if cfg.Decision.EscalationSustain == 0 {
		cfg.Decision.EscalationSustain = Duration(30 * time.Second)
	}
	if cfg.Decision.HighConfidence == 0 {
		cfg.Decision.HighConfidence = 0.75
	}
	if cfg.Decision.BorderlineConfidence == 0 {
		cfg.Decision.BorderlineConfidence = 0.4
	}
	if cfg.Decision.RecoveryMinConfidence == 0 {
		cfg.Decision.RecoveryMinConfidence = 0.6
	}
	if cfg.Decision.AuditPath == "" {
		cfg.Decision.AuditPath = "~/.local/share/vigild/decisions.jsonl"
	}

	// Advisory defaults
	if cfg.Advisory.Timeout == 0 {
		cfg.Advisory.Timeout = Duration(5 * time.Second)
	}
	if cfg.Advisory.Model == "" {
		cfg.Advisory.Model = "gpt-4o-mini"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9290
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Signals defaults
	if cfg.Signals.Source == "" {
		cfg.Signals.Source = "nats"
	}
	if cfg.Signals.Stream == "" {
		cfg.Signals.Stream = "stream-0"
	}
	if cfg.Signals.NATS.URL == "" {
		cfg.Signals.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Signals.NATS.Subject == "" {
		cfg.Signals.NATS.Subject = "vigild.signals"
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
