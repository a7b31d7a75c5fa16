package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/cdesk/internal/models"
	"github.com/joescharf/cdesk/internal/output"
)

var (
	projectName      string
	projectServeCmd  string
	projectServePort int
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  "Add, remove, and list projects. Sessions can be grouped under a project, and a project's serve command powers the preview pane.",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a project directory",
	Long:  "Register a project directory. Use '.' for the current directory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(args[0])
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

func init() {
	projectAddCmd.Flags().StringVar(&projectName, "name", "", "Override project name (default: directory name)")
	projectAddCmd.Flags().StringVar(&projectServeCmd, "serve-cmd", "", "Command that serves the project for preview")
	projectAddCmd.Flags().IntVar(&projectServePort, "serve-port", 0, "Port the preview server listens on")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectAddRun(rawPath string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absPath)
	}

	name := projectName
	if name == "" {
		name = filepath.Base(absPath)
	}

	p := &models.Project{
		Name:      name,
		Path:      absPath,
		ServeCmd:  projectServeCmd,
		ServePort: projectServePort,
	}
	if err := s.CreateProject(context.Background(), p); err != nil {
		return fmt.Errorf("add project: %w", err)
	}

	ui.Success("Added project: %s (%s)", output.Cyan(name), absPath)
	if p.PreviewURL() != "" {
		ui.VerboseLog("Preview: %s", p.PreviewURL())
	}
	return nil
}

func projectRemoveRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := s.GetProjectByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}

	ui.Success("Removed project: %s", output.Cyan(p.Name))
	return nil
}

func projectListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		ui.Info("No projects. Use 'cdesk project add <path>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Name", "Path", "Serve Cmd", "Port", "Sessions"})
	for _, p := range projects {
		sessions, _ := s.ListSessions(ctx, p.ID, 1000, 0)

		port := ""
		if p.ServePort != 0 {
			port = strconv.Itoa(p.ServePort)
		}
		table.Append([]string{
			output.Cyan(p.Name),
			p.Path,
			p.ServeCmd,
			port,
			strconv.Itoa(len(sessions)),
		})
	}
	table.Render()
	return nil
}
