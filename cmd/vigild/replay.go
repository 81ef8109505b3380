package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vigild/internal/config"
	"github.com/fyrsmithlabs/vigild/internal/decision"
	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/pipeline"
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
	"github.com/fyrsmithlabs/vigild/internal/store"
)

var (
	replayStart string
	replayEnd   string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-derive the snapshot and decision for a stored window",
	Long: `Replay reads the stored event sequence for a time window and rebuilds
the analysis snapshot and its decision from scratch. It consults no live
state, so replaying the same window always prints the same result — the
audit answer to "why did the system decide that?".

Examples:
  vigild replay --start 2026-08-29T10:00:00Z --end 2026-08-29T10:05:00Z`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayStart, "start", "", "window start (RFC 3339, required)")
	replayCmd.Flags().StringVar(&replayEnd, "end", "", "window end (RFC 3339, required)")
	replayCmd.MarkFlagRequired("start") //nolint:errcheck
	replayCmd.MarkFlagRequired("end")   //nolint:errcheck
}

func runReplay(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, replayStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, replayEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("--end must be after --start")
	}

	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Backend != "sqlite" {
		return fmt.Errorf("replay requires the sqlite store backend, got %q", cfg.Store.Backend)
	}

	path, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("resolve store path: %w", err)
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer st.Close()

	builder := snapshot.NewBuilder(snapshot.Config{
		StateType:        event.Type(cfg.Snapshot.StateType),
		RecoveryType:     event.Type(cfg.Snapshot.RecoveryType),
		SustainReference: cfg.Decision.EscalationSustain.Duration(),
	})
	decider, err := decision.NewDefaultEngine(decision.Thresholds{
		EscalationSustain:     cfg.Decision.EscalationSustain.Duration(),
		HighConfidence:        cfg.Decision.HighConfidence,
		BorderlineConfidence:  cfg.Decision.BorderlineConfidence,
		RecoveryMinConfidence: cfg.Decision.RecoveryMinConfidence,
	})
	if err != nil {
		return fmt.Errorf("build decision engine: %w", err)
	}

	result, err := pipeline.Replay(cmd.Context(), st, builder, decider, start, end)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
