package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tendermatch/internal/ingest"
)

var (
	ingestDays   int
	ingestLimit  int
	ingestSource string

	backfillKeyword string
	backfillFrom    string
	backfillTo      string
	backfillLimit   int

	enrichLimit int
)

var initDBCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the database schema (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.store.InitSchema(cmd.Context()); err != nil {
			return err
		}
		if err := a.store.RunMigrations(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Schema initialised.")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull releases from an OCDS source and upsert notices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		worker, err := a.worker(ingestSource)
		if err != nil {
			return err
		}

		opts := ingest.Options{Limit: ingestLimit}
		if ingestDays > 0 {
			opts.Since = time.Now().UTC().AddDate(0, 0, -ingestDays)
		}
		stats, err := worker.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Printf("Ingestion complete: %d processed, %d failed, %d skipped.\n",
			stats.Processed, stats.Failed, stats.Skipped)
		// Partial failures only fail the command when nothing succeeded.
		if stats.Processed == 0 && stats.Failed > 0 {
			return fmt.Errorf("all %d releases failed", stats.Failed)
		}
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch a keyword-filtered historical window into the radar corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillKeyword == "" {
			return fmt.Errorf("--keyword is required")
		}
		from, err := time.Parse("2006-01-02", backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
		to, err := time.Parse("2006-01-02", backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to date: %w", err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		worker, err := a.worker(ingestSource)
		if err != nil {
			return err
		}
		stats, err := worker.Backfill(cmd.Context(), backfillKeyword, from, to, backfillLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Backfill complete: %d kept, %d failed, %d outside mesh or invalid.\n",
			stats.Processed, stats.Failed, stats.Skipped)
		if stats.Processed == 0 && stats.Failed > 0 {
			return fmt.Errorf("all %d releases failed", stats.Failed)
		}
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich stale notices missing embeddings or activity tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		done, err := a.enricher.EnrichStale(cmd.Context(), a.store.Ext(), enrichLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Enriched %d notices.\n", done)
		return nil
	},
}

var renewalsCmd = &cobra.Command{
	Use:   "renewals",
	Short: "Scan ending contract awards and raise renewal alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.alerts.ScanRenewals(cmd.Context(), a.store.Ext(),
			time.Now().UTC(), cfg.Ingestion.RenewalHorizonMonths)
		if err != nil {
			return err
		}
		fmt.Printf("Created %d renewal alerts.\n", created)
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestDays, "days", 0, "override watermark to N days back")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "max releases to process (0 = unlimited)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source name (default: first configured)")

	backfillCmd.Flags().StringVar(&backfillKeyword, "keyword", "", "search keyword")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "published-from date (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "published-to date (YYYY-MM-DD)")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "max releases to keep (0 = unlimited)")
	backfillCmd.Flags().StringVar(&ingestSource, "source", "", "source name (default: first configured)")

	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 100, "max notices to enrich")

	rootCmd.AddCommand(initDBCmd, ingestCmd, backfillCmd, enrichCmd, renewalsCmd)
}
