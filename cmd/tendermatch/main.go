// Package main implements the tendermatch CLI: schema init, OCDS
// ingestion and backfill, match recalculation, Tier-2 review, the
// opportunity feed and result export.
//
// Commands are split across files by area:
//   - cmd_ingest.go - initdb, ingest, backfill, enrich, renewals
//   - cmd_match.go  - recalc, review
//   - cmd_feed.go   - feed, alerts, alert-read, track, export
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tendermatch/internal/config"
	"tendermatch/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tendermatch",
	Short: "tendermatch - procurement notice matching for charities",
	Long: `tendermatch ranks live public-procurement notices against curated
charity service profiles. It ingests OCDS release packages, enriches
mesh-relevant notices with embeddings and activity tags, runs the
matching funnel per profile, and surfaces a scored, explained shortlist
with material-change alerts and historical buyer intelligence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; explicit environment always wins.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "tendermatch.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
