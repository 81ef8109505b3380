// Vigild is a residential safety daemon. It consumes posture and motion
// signals, classifies them into discrete events, persists the events in
// an append-only store, and evaluates a deterministic decision state
// machine over sliding analysis windows.
//
// Usage:
//
//	# Run the pipeline with the default config
//	vigild run
//
//	# Re-derive the decision for a stored window
//	vigild replay --start 2026-08-29T10:00:00Z --end 2026-08-29T10:05:00Z
//
// Configuration is loaded from ~/.config/vigild/config.yaml and VIGILD_*
// environment variables. See internal/config for details.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configFile is the --config override shared by all subcommands.
var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vigild",
	Short: "Event-to-decision pipeline for residential safety monitoring",
	Long: `vigild turns raw motion and posture signals into an auditable trail of
events, analysis snapshots, and decisions. Signals are classified into
atomic events, composed into higher-level patterns, and persisted in an
append-only event store; a deterministic rule engine evaluates each
analysis window and records what it decided and why.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vigild by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.config/vigild/config.yaml)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}
