package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/advisory"
	"github.com/fyrsmithlabs/vigild/internal/config"
	"github.com/fyrsmithlabs/vigild/internal/decision"
	"github.com/fyrsmithlabs/vigild/internal/engine"
	"github.com/fyrsmithlabs/vigild/internal/event"
	vigildhttp "github.com/fyrsmithlabs/vigild/internal/http"
	"github.com/fyrsmithlabs/vigild/internal/logging"
	"github.com/fyrsmithlabs/vigild/internal/pipeline"
	sigsrc "github.com/fyrsmithlabs/vigild/internal/signal"
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
	"github.com/fyrsmithlabs/vigild/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the signal-to-decision pipeline",
	Long: `Run consumes the configured signal source, classifies signals into
events, persists them, and evaluates decisions until the source ends or
the process receives SIGINT/SIGTERM.

Examples:
  # Run with the default config
  vigild run

  # Run against a recorded signal file
  VIGILD_SIGNALS_SOURCE=file VIGILD_SIGNALS_FILE=walk.jsonl vigild run`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	advisor, err := buildAdvisor(cfg, log)
	if err != nil {
		return err
	}

	if err := registerEventTypes(cfg); err != nil {
		return err
	}

	decider, err := decision.NewDefaultEngine(decision.Thresholds{
		EscalationSustain:     cfg.Decision.EscalationSustain.Duration(),
		HighConfidence:        cfg.Decision.HighConfidence,
		BorderlineConfidence:  cfg.Decision.BorderlineConfidence,
		RecoveryMinConfidence: cfg.Decision.RecoveryMinConfidence,
	})
	if err != nil {
		return fmt.Errorf("build decision engine: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Config{
		Stream:         cfg.Signals.Stream,
		SnapshotWindow: cfg.Snapshot.Window.Duration(),
		EvalInterval:   cfg.Snapshot.EvalInterval.Duration(),
		QueueSize:      cfg.Engine.QueueSize,
		ReorderWindow:  cfg.Engine.ReorderWindow.Duration(),
	}, pipeline.Deps{
		Classifier: engine.NewClassifier(classifierConfig(cfg), log),
		Composer:   engine.NewComposer(patternsFromConfig(cfg.Patterns)),
		Store:      st,
		Builder: snapshot.NewBuilder(snapshot.Config{
			StateType:        event.Type(cfg.Snapshot.StateType),
			RecoveryType:     event.Type(cfg.Snapshot.RecoveryType),
			SustainReference: cfg.Decision.EscalationSustain.Duration(),
		}),
		Decider: decider,
		Advisor: advisor,
		Audit:   audit,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}

	var srv *vigildhttp.Server
	if cfg.Server.Enabled {
		srv, err = vigildhttp.NewServer(st, pipe, log.Underlying(), &vigildhttp.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		})
		if err != nil {
			return fmt.Errorf("build http server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "http server failed", zap.Error(err))
			}
		}()
	}

	log.Info(ctx, "pipeline starting",
		zap.String("stream", cfg.Signals.Stream),
		zap.String("source", cfg.Signals.Source),
		zap.String("store", cfg.Store.Backend))

	runErr := pipe.Run(ctx, src)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if srv != nil {
		timeout := cfg.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("pipeline: %w", runErr)
	}
	log.Info(context.Background(), "pipeline stopped")
	return nil
}

func classifierConfig(cfg *config.Config) engine.Config {
	milestones := make([]time.Duration, len(cfg.Engine.ImmobileMilestones))
	for i, m := range cfg.Engine.ImmobileMilestones {
		milestones[i] = m.Duration()
	}
	return engine.Config{
		MotionThreshold:      cfg.Engine.MotionThreshold,
		MotionCooldown:       cfg.Engine.MotionCooldown.Duration(),
		StillCooldown:        cfg.Engine.StillCooldown.Duration(),
		MotionScoreThreshold: cfg.Engine.MotionScoreThreshold,
		ImmobileMilestones:   milestones,
		LowPostureSustain:    cfg.Engine.LowPostureSustain.Duration(),
		FallConfirmSustain:   cfg.Engine.FallConfirmSustain.Duration(),
	}
}

// registerEventTypes extends the event vocabulary with configured types
// and checks that every pattern references known types afterwards.
func registerEventTypes(cfg *config.Config) error {
	for _, et := range cfg.EventTypes {
		sev := event.Severity(et.Severity)
		if et.Severity == "" {
			sev = event.SeverityMedium
		}
		if err := event.Register(event.Type(et.Name), event.Definition{
			Category: event.Category(et.Category),
			Severity: sev,
		}); err != nil {
			return fmt.Errorf("register event type: %w", err)
		}
	}
	for _, pc := range cfg.Patterns {
		for _, t := range pc.RequiredTypes {
			if !event.Known(event.Type(t)) {
				return fmt.Errorf("pattern %q: unknown required type %q", pc.Name, t)
			}
		}
		if !event.Known(event.Type(pc.EmitType)) {
			return fmt.Errorf("pattern %q: unknown emit type %q", pc.Name, pc.EmitType)
		}
	}
	return nil
}

func patternsFromConfig(pcs []config.PatternConfig) []engine.Pattern {
	patterns := make([]engine.Pattern, len(pcs))
	for i, pc := range pcs {
		required := make([]event.Type, len(pc.RequiredTypes))
		for j, t := range pc.RequiredTypes {
			required[j] = event.Type(t)
		}
		patterns[i] = engine.Pattern{
			Name:          pc.Name,
			RequiredTypes: required,
			Ordered:       pc.Ordered,
			MaxElapsed:    pc.MaxElapsed.Duration(),
			MinConfidence: pc.MinConfidence,
			EmitType:      event.Type(pc.EmitType),
		}
	}
	return patterns
}

// openStore builds the configured backend wrapped in the retry layer so
// transient write failures degrade instead of crashing the pipeline.
func openStore(cfg *config.Config, log *logging.Logger) (store.Store, error) {
	var inner store.Store
	switch cfg.Store.Backend {
	case "memory":
		inner = store.NewMemoryStore()
	case "sqlite":
		path, err := config.ExpandPath(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve store path: %w", err)
		}
		inner, err = store.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return store.NewRetryStore(inner, cfg.Store.MaxRetries, cfg.Store.RetryBackoff.Duration(), log), nil
}

func openAudit(cfg *config.Config) (*pipeline.AuditLog, error) {
	if cfg.Decision.AuditPath == "" {
		return pipeline.NewMemoryAuditLog(), nil
	}
	path, err := config.ExpandPath(cfg.Decision.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("resolve audit path: %w", err)
	}
	audit, err := pipeline.NewAuditLog(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return audit, nil
}

func buildAdvisor(cfg *config.Config, log *logging.Logger) (advisory.Advisor, error) {
	if !cfg.Advisory.Enabled {
		return advisory.Nop{}, nil
	}
	advisor, err := advisory.NewLLMAdvisor(advisory.Config{
		BaseURL: cfg.Advisory.BaseURL,
		Model:   cfg.Advisory.Model,
		APIKey:  cfg.Advisory.APIKey.Value(),
		Timeout: cfg.Advisory.Timeout.Duration(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build advisory reader: %w", err)
	}
	return advisor, nil
}

func openSource(cfg *config.Config) (sigsrc.Source, error) {
	switch cfg.Signals.Source {
	case "nats":
		src, err := sigsrc.NewNATSSource(cfg.Signals.NATS.URL, cfg.Signals.NATS.Subject, cfg.Signals.Stream)
		if err != nil {
			return nil, fmt.Errorf("connect nats source: %w", err)
		}
		return src, nil
	case "spool":
		dir, err := config.ExpandPath(cfg.Signals.SpoolDir)
		if err != nil {
			return nil, fmt.Errorf("resolve spool directory: %w", err)
		}
		src, err := sigsrc.NewSpoolSource(dir, cfg.Signals.Stream)
		if err != nil {
			return nil, fmt.Errorf("open spool source: %w", err)
		}
		return src, nil
	case "file":
		path, err := config.ExpandPath(cfg.Signals.File)
		if err != nil {
			return nil, fmt.Errorf("resolve signal file: %w", err)
		}
		src, err := sigsrc.NewFileSource(path, cfg.Signals.Stream)
		if err != nil {
			return nil, fmt.Errorf("open signal file: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown signal source %q", cfg.Signals.Source)
	}
}
