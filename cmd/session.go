package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/cdesk/internal/backend"
	"github.com/joescharf/cdesk/internal/output"
)

var (
	sessionProject string
	sessionLimit   int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage coding sessions",
	Long:  "List, rename, and delete coding sessions. Use 'cdesk chat' to open one.",
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRenameRun(args[0], args[1])
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session and its history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionDeleteRun(args[0])
	},
}

func init() {
	sessionListCmd.Flags().StringVar(&sessionProject, "project", "", "Filter by project name")
	sessionListCmd.Flags().IntVar(&sessionLimit, "limit", 50, "Maximum sessions to list")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionRenameCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	projectID := ""
	if sessionProject != "" {
		p, err := s.GetProjectByName(ctx, sessionProject)
		if err != nil {
			return err
		}
		projectID = p.ID
	}

	sessions, err := s.ListSessions(ctx, projectID, sessionLimit, 0)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		ui.Info("No sessions. Use 'cdesk chat [dir]' to start one.")
		return nil
	}

	detector := &backend.OSProcessDetector{}

	table := ui.Table([]string{"ID", "Title", "Directory", "Assistant", "Msgs", "Last Message", "Updated"})
	for _, sess := range sessions {
		status := "stopped"
		if detector.IsAssistantRunning(sess.WorkingDirectory) {
			status = "running"
		}
		table.Append([]string{
			sess.ID,
			output.Cyan(sess.Title),
			sess.WorkingDirectory,
			output.StatusColor(status),
			strconv.Itoa(sess.MessageCount),
			sess.LastMessage,
			relativeTime(sess.UpdatedAt),
		})
	}
	table.Render()
	return nil
}

func sessionRenameRun(id, title string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if err := s.RenameSession(context.Background(), id, title); err != nil {
		return err
	}
	ui.Success("Renamed session %s to %s", id, output.Cyan(title))
	return nil
}

func sessionDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if err := s.DeleteSession(context.Background(), id); err != nil {
		return err
	}
	ui.Success("Deleted session %s", id)
	return nil
}

// relativeTime formats a timestamp as a short "2h ago" style string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
