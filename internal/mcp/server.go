// Package mcp exposes the cdesk data layer as MCP tools so other agents can
// inspect and drive coding sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/cdesk/internal/models"
	"github.com/joescharf/cdesk/internal/store"
)

// Server wraps the cdesk store and exposes it as MCP tools.
type Server struct {
	store store.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("cdesk", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionHistoryTool())
	srv.AddTool(s.createSessionTool())
	srv.AddTool(s.renameSessionTool())
	srv.AddTool(s.deleteSessionTool())
	srv.AddTool(s.activityTool())
	srv.AddTool(s.clearActivityTool())
	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.createProjectTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// cdesk_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_list_sessions",
		mcp.WithDescription("List coding sessions, most recently updated first. Returns a JSON array with id, title, working directory, message count, and a preview of the last message."),
		mcp.WithString("project_id", mcp.Description("Filter by project id")),
		mcp.WithNumber("limit", mcp.Description("Maximum sessions to return (default 50)")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	limit := request.GetInt("limit", 50)

	sessions, err := s.store.ListSessions(ctx, projectID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID               string    `json:"id"`
		Title            string    `json:"title"`
		WorkingDirectory string    `json:"workingDirectory"`
		ProjectID        string    `json:"projectId,omitempty"`
		MessageCount     int       `json:"messageCount"`
		LastMessage      string    `json:"lastMessage,omitempty"`
		UpdatedAt        time.Time `json:"updatedAt"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:               sess.ID,
			Title:            sess.Title,
			WorkingDirectory: sess.WorkingDirectory,
			ProjectID:        sess.ProjectID,
			MessageCount:     sess.MessageCount,
			LastMessage:      sess.LastMessage,
			UpdatedAt:        sess.UpdatedAt,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cdesk_session_history
func (s *Server) sessionHistoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_session_history",
		mcp.WithDescription("Get the full message history of a session as a JSON array with role, content, and tool usage."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleSessionHistory
}

func (s *Server) handleSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %v", err)), nil
	}
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list messages: %v", err)), nil
	}

	type messageOut struct {
		ID        string             `json:"id"`
		Role      models.Role        `json:"role"`
		Content   string             `json:"content"`
		ToolUsage []models.ToolUsage `json:"toolUsage,omitempty"`
		CreatedAt time.Time          `json:"createdAt"`
	}

	out := make([]messageOut, len(messages))
	for i, m := range messages {
		out[i] = messageOut{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			ToolUsage: m.ToolUsage,
			CreatedAt: m.CreatedAt,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal messages: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cdesk_create_session
func (s *Server) createSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_create_session",
		mcp.WithDescription("Create a new coding session bound to a working directory. Returns the created session as JSON."),
		mcp.WithString("working_dir", mcp.Required(), mcp.Description("Absolute path of the session's working directory")),
		mcp.WithString("title", mcp.Description("Session title (defaults to the directory name)")),
		mcp.WithString("project_id", mcp.Description("Project to associate the session with")),
	)
	return tool, s.handleCreateSession
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workingDir := request.GetString("working_dir", "")
	if workingDir == "" {
		return mcp.NewToolResultError("working_dir is required"), nil
	}

	title := request.GetString("title", "")
	if title == "" {
		title = filepath.Base(workingDir)
	}
	sess := &models.Session{
		Title:            title,
		WorkingDirectory: workingDir,
		ProjectID:        request.GetString("project_id", ""),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create session: %v", err)), nil
	}

	data, err := json.Marshal(map[string]string{
		"id":               sess.ID,
		"title":            sess.Title,
		"workingDirectory": sess.WorkingDirectory,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cdesk_rename_session
func (s *Server) renameSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_rename_session",
		mcp.WithDescription("Rename a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
	)
	return tool, s.handleRenameSession
}

func (s *Server) handleRenameSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	title := request.GetString("title", "")
	if sessionID == "" || title == "" {
		return mcp.NewToolResultError("session_id and title are required"), nil
	}

	if err := s.store.RenameSession(ctx, sessionID, title); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to rename session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed session %s to %q", sessionID, title)), nil
}

// cdesk_delete_session
func (s *Server) deleteSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_delete_session",
		mcp.WithDescription("Delete a session and its messages and activity log."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleDeleteSession
}

func (s *Server) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted session %s", sessionID)), nil
}

// cdesk_activity
func (s *Server) activityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_activity",
		mcp.WithDescription("Get the file activity log of a session: which files were created, modified, or deleted, and by whom (assistant or external)."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("filter", mcp.Description("Filter by operation: all, created, modified, deleted")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 100)")),
	)
	return tool, s.handleActivity
}

func (s *Server) handleActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	filter := store.ActivityFilter(request.GetString("filter", "all"))
	limit := request.GetInt("limit", 100)

	entries, err := s.store.ListActivity(ctx, sessionID, filter, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list activity: %v", err)), nil
	}

	type entryOut struct {
		Path      string    `json:"path"`
		Operation string    `json:"operation"`
		Source    string    `json:"source"`
		Timestamp time.Time `json:"timestamp"`
	}

	out := make([]entryOut, len(entries))
	for i, e := range entries {
		out[i] = entryOut{
			Path:      e.Path,
			Operation: string(e.Operation),
			Source:    string(e.Source),
			Timestamp: e.Timestamp,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal activity: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cdesk_clear_activity
func (s *Server) clearActivityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_clear_activity",
		mcp.WithDescription("Clear the file activity log of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleClearActivity
}

func (s *Server) handleClearActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	if err := s.store.ClearActivity(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear activity: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("cleared activity for session %s", sessionID)), nil
}

// cdesk_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_list_projects",
		mcp.WithDescription("List configured projects. Returns a JSON array with id, name, path, serve command, and preview port."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}

	type projectOut struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Path      string `json:"path"`
		ServeCmd  string `json:"serveCmd,omitempty"`
		ServePort int    `json:"servePort,omitempty"`
	}

	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = projectOut{
			ID:        p.ID,
			Name:      p.Name,
			Path:      p.Path,
			ServeCmd:  p.ServeCmd,
			ServePort: p.ServePort,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal projects: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cdesk_create_project
func (s *Server) createProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cdesk_create_project",
		mcp.WithDescription("Register a project. Sessions created under its path can pick up its preview serve command."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute project path")),
		mcp.WithString("serve_cmd", mcp.Description("Command that serves the project for preview")),
		mcp.WithNumber("serve_port", mcp.Description("Port the preview server listens on")),
	)
	return tool, s.handleCreateProject
}

func (s *Server) handleCreateProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "")
	path := request.GetString("path", "")
	if name == "" || path == "" {
		return mcp.NewToolResultError("name and path are required"), nil
	}

	p := &models.Project{
		Name:      name,
		Path:      path,
		ServeCmd:  request.GetString("serve_cmd", ""),
		ServePort: request.GetInt("serve_port", 0),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create project: %v", err)), nil
	}

	data, err := json.Marshal(map[string]string{"id": p.ID, "name": p.Name, "path": p.Path})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal project: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
