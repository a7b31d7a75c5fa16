package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cdesk/internal/models"
	"github.com/joescharf/cdesk/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return NewServer(st), st
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedSession(t *testing.T, st store.Store, title string) *models.Session {
	t.Helper()
	sess := &models.Session{Title: title, WorkingDirectory: "/tmp/" + title}
	require.NoError(t, st.CreateSession(context.Background(), sess))
	return sess
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer())
}

func TestHandleListSessions_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListSessions(context.Background(), callToolReq("cdesk_list_sessions", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	assert.Empty(t, out)
}

func TestHandleListSessions_WithSessions(t *testing.T) {
	srv, st := newTestServer(t)
	seedSession(t, st, "alpha")
	seedSession(t, st, "beta")

	result, err := srv.handleListSessions(context.Background(), callToolReq("cdesk_list_sessions", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	assert.Len(t, out, 2)
}

func TestHandleSessionHistory(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, "alpha")
	require.NoError(t, st.SaveMessage(context.Background(), &models.Message{
		SessionID: sess.ID,
		Role:      models.RoleUser,
		Content:   "hello there",
		CreatedAt: time.Now().UTC(),
	}))

	result, err := srv.handleSessionHistory(context.Background(),
		callToolReq("cdesk_session_history", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "hello there", out[0]["content"])
	assert.Equal(t, "user", out[0]["role"])
}

func TestHandleSessionHistory_MissingID(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSessionHistory(context.Background(),
		callToolReq("cdesk_session_history", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSessionHistory_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSessionHistory(context.Background(),
		callToolReq("cdesk_session_history", map[string]any{"session_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCreateSession(t *testing.T) {
	srv, st := newTestServer(t)

	result, err := srv.handleCreateSession(context.Background(),
		callToolReq("cdesk_create_session", map[string]any{
			"working_dir": "/tmp/proj",
			"title":       "my session",
		}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]string
	resultJSON(t, result, &out)
	require.NotEmpty(t, out["id"])

	sess, err := st.GetSession(context.Background(), out["id"])
	require.NoError(t, err)
	assert.Equal(t, "my session", sess.Title)
	assert.Equal(t, "/tmp/proj", sess.WorkingDirectory)
}

func TestHandleCreateSession_DefaultTitle(t *testing.T) {
	srv, st := newTestServer(t)

	result, err := srv.handleCreateSession(context.Background(),
		callToolReq("cdesk_create_session", map[string]any{"working_dir": "/tmp/proj"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]string
	resultJSON(t, result, &out)

	sess, err := st.GetSession(context.Background(), out["id"])
	require.NoError(t, err)
	assert.Equal(t, "proj", sess.Title)
}

func TestHandleRenameSession(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, "old name")

	result, err := srv.handleRenameSession(context.Background(),
		callToolReq("cdesk_rename_session", map[string]any{
			"session_id": sess.ID,
			"title":      "new name",
		}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	got, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "new name", got.Title)
}

func TestHandleDeleteSession(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, "doomed")

	result, err := srv.handleDeleteSession(context.Background(),
		callToolReq("cdesk_delete_session", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	_, err = st.GetSession(context.Background(), sess.ID)
	assert.Error(t, err)
}

func TestHandleActivity(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, "active")
	require.NoError(t, st.SaveActivity(context.Background(), &models.ActivityEntry{
		ID:        "a1",
		SessionID: sess.ID,
		Path:      "main.go",
		Operation: models.OpModified,
		Source:    models.SourceAssistant,
		Timestamp: time.Now().UTC(),
	}))

	result, err := srv.handleActivity(context.Background(),
		callToolReq("cdesk_activity", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "main.go", out[0]["path"])
	assert.Equal(t, "assistant", out[0]["source"])
}

func TestHandleActivity_Filtered(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, "active")
	for i, op := range []models.FileOperation{models.OpCreated, models.OpModified} {
		require.NoError(t, st.SaveActivity(context.Background(), &models.ActivityEntry{
			ID:        string(rune('a' + i)),
			SessionID: sess.ID,
			Path:      "f.go",
			Operation: op,
			Source:    models.SourceExternal,
			Timestamp: time.Now().UTC(),
		}))
	}

	result, err := srv.handleActivity(context.Background(),
		callToolReq("cdesk_activity", map[string]any{"session_id": sess.ID, "filter": "created"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "created", out[0]["operation"])
}

func TestHandleClearActivity(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, "active")
	require.NoError(t, st.SaveActivity(context.Background(), &models.ActivityEntry{
		ID:        "a1",
		SessionID: sess.ID,
		Path:      "main.go",
		Operation: models.OpDeleted,
		Source:    models.SourceExternal,
		Timestamp: time.Now().UTC(),
	}))

	result, err := srv.handleClearActivity(context.Background(),
		callToolReq("cdesk_clear_activity", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	entries, err := st.ListActivity(context.Background(), sess.ID, store.FilterAll, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleCreateAndListProjects(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleCreateProject(context.Background(),
		callToolReq("cdesk_create_project", map[string]any{
			"name":       "site",
			"path":       "/tmp/site",
			"serve_cmd":  "npm run dev",
			"serve_port": 3000,
		}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = srv.handleListProjects(context.Background(),
		callToolReq("cdesk_list_projects", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "site", out[0]["name"])
	assert.Equal(t, "npm run dev", out[0]["serveCmd"])
	assert.Equal(t, float64(3000), out[0]["servePort"])
}

func TestHandleCreateProject_MissingArgs(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleCreateProject(context.Background(),
		callToolReq("cdesk_create_project", map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
