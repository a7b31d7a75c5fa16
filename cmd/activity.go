package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/cdesk/internal/store"
)

var (
	activityFilter string
	activityLimit  int
)

var activityCmd = &cobra.Command{
	Use:   "activity <session-id>",
	Short: "Show a session's file activity log",
	Long:  "Show which files a session touched, who changed them (assistant or external), and when.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return activityRun(args[0])
	},
}

var activityClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Clear a session's file activity log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return activityClearRun(args[0])
	},
}

func init() {
	activityCmd.Flags().StringVar(&activityFilter, "filter", "all", "Filter by operation: all, created, modified, deleted")
	activityCmd.Flags().IntVar(&activityLimit, "limit", 100, "Maximum entries to show")

	activityCmd.AddCommand(activityClearCmd)
	rootCmd.AddCommand(activityCmd)
}

func activityRun(sessionID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	entries, err := s.ListActivity(ctx, sessionID, store.ActivityFilter(activityFilter), activityLimit, 0)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		ui.Info("No file activity recorded for session %s.", sessionID)
		return nil
	}

	table := ui.Table([]string{"Path", "Operation", "Source", "When"})
	for _, e := range entries {
		table.Append([]string{
			e.Path,
			string(e.Operation),
			string(e.Source),
			relativeTime(e.Timestamp),
		})
	}
	table.Render()
	return nil
}

func activityClearRun(sessionID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if err := s.ClearActivity(context.Background(), sessionID); err != nil {
		return err
	}
	ui.Success("Cleared activity for session %s", sessionID)
	return nil
}
