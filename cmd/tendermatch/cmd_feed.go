package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	feedLimit int
	exportOut string
)

var feedCmd = &cobra.Command{
	Use:   "feed <org-id>",
	Short: "Show a profile's ranked match shortlist",
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

		matches, err := a.feed.Matches(cmd.Context(), orgID, feedLimit)
		if err != nil {
			return err
		}
		for _, m := range matches {
			tracked := " "
			if m.IsTracked {
				tracked = "*"
			}
			fmt.Printf("%s %-7s %.4f  %s\n", tracked, m.Verdict, m.Score, m.OCID)
		}
		fmt.Printf("%d match(es).\n", len(matches))
		return nil
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts <org-id>",
	Short: "List a profile's unread alerts",
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

		alerts, err := a.feed.UnreadAlerts(cmd.Context(), orgID)
		if err != nil {
			return err
		}
		for _, alert := range alerts {
			fmt.Printf("%s [%s/%s] %s - %s\n",
				alert.ID, alert.Type, alert.Severity, alert.OCID, alert.Message)
		}
		fmt.Printf("%d unread alert(s).\n", len(alerts))
		return nil
	},
}

var alertReadCmd = &cobra.Command{
	Use:   "alert-read <alert-id>",
	Short: "Mark an alert as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alertID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid alert id: %w", err)
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.feed.MarkAlertRead(cmd.Context(), alertID)
	},
}

var trackCmd = &cobra.Command{
	Use:   "track <org-id> <ocid>",
	Short: "Toggle tracking of a notice for a profile",
	Args:  cobra.ExactArgs(2),
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

		tracked, err := a.feed.ToggleTracking(cmd.Context(), orgID, args[1])
		if err != nil {
			return err
		}
		if tracked {
			fmt.Printf("Now tracking %s.\n", args[1])
		} else {
			fmt.Printf("Stopped tracking %s.\n", args[1])
		}
		return nil
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest <org-id>",
	Short: "Print a profile's daily alert digest",
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

		digest, err := a.feed.DailyDigest(cmd.Context(), orgID, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Println(digest)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <org-id>",
	Short: "Export a profile's ranked matches as JSON",
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

		matches, err := a.feed.Matches(cmd.Context(), orgID, 1000)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(matches); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		if exportOut != "" {
			fmt.Printf("Exported %d matches to %s.\n", len(matches), exportOut)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().IntVar(&feedLimit, "limit", 20, "max matches to show")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(feedCmd, alertsCmd, alertReadCmd, trackCmd, digestCmd, exportCmd)
}
