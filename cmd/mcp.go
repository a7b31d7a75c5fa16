package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/cdesk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets other agents query cdesk for session history, file activity,
and projects. Configure in Claude Code with:

  {
    "mcpServers": {
      "cdesk": { "command": "cdesk", "args": ["mcp"] }
    }
  }

Available tools: cdesk_list_sessions, cdesk_session_history,
cdesk_create_session, cdesk_rename_session, cdesk_delete_session,
cdesk_activity, cdesk_clear_activity, cdesk_list_projects,
cdesk_create_project`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return mcp.NewServer(s).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
