package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	recalcWorkers int
	reviewTopK    int
)

var recalcCmd = &cobra.Command{
	Use:   "recalc [org-id]",
	Short: "Run the matching funnel for one profile or all profiles",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			orgID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid org id: %w", err)
			}
			if err := a.engine.Recalculate(cmd.Context(), orgID); err != nil {
				return err
			}
			fmt.Printf("Recalculated matches for %s.\n", orgID)
			return nil
		}

		workers := recalcWorkers
		if workers <= 0 {
			workers = cfg.Matching.Workers
		}
		if err := a.engine.RecalculateAll(cmd.Context(), workers); err != nil {
			return err
		}
		fmt.Println("Recalculation complete.")
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <org-id>",
	Short: "Run the Tier-2 LLM review over a profile's top matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orgID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid org id: %w", err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		topK := reviewTopK
		if topK <= 0 {
			topK = cfg.Review.TopK
		}
		if err := a.reviewer.Review(cmd.Context(), orgID, topK); err != nil {
			return err
		}
		fmt.Printf("Tier-2 review complete for %s.\n", orgID)
		return nil
	},
}

func init() {
	recalcCmd.Flags().IntVar(&recalcWorkers, "workers", 0, "parallel profiles (default from config)")
	reviewCmd.Flags().IntVar(&reviewTopK, "top", 0, "matches to review (default from config)")
	rootCmd.AddCommand(recalcCmd, reviewCmd)
}
