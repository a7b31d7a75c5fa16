package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cdesk/internal/models"
	"github.com/joescharf/cdesk/internal/registry"
)

type nopLogger struct{}

func (nopLogger) VerboseLog(string, ...any) {}

func newTestAssembler(t *testing.T) (*Assembler, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.AddSession(&models.Session{ID: "s1", WorkingDirectory: "/tmp/s1"})
	require.NoError(t, reg.AppendMessage("s1", &models.Message{
		ID: "m1", SessionID: "s1", Role: models.RoleAssistant, Streaming: true,
	}))
	return New(reg, nopLogger{}), reg
}

func TestApplyChunksInOrder(t *testing.T) {
	a, reg := newTestAssembler(t)

	a.ApplyChunk("m1", "Hello ", nil)
	a.ApplyChunk("m1", "world", nil)
	a.Complete("m1")

	m, ok := reg.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "Hello world", m.Content)
	assert.False(t, m.Streaming)
}

func TestApplyChunk_AttachesToolUsage(t *testing.T) {
	a, reg := newTestAssembler(t)

	a.ApplyChunk("m1", "", &models.ToolUsage{ID: "t1", Name: "write_file", Status: models.ToolRunning})
	a.ApplyChunk("m1", "done", &models.ToolUsage{ID: "t2", Name: "read_file", Status: models.ToolCompleted})

	m, ok := reg.Message("m1")
	require.True(t, ok)
	require.Len(t, m.ToolUsage, 2)
	assert.Equal(t, "write_file", m.ToolUsage[0].Name)
	assert.Equal(t, "read_file", m.ToolUsage[1].Name)
}

func TestUnknownMessageIsSilentlyDropped(t *testing.T) {
	a, reg := newTestAssembler(t)

	// Must not panic or corrupt state
	a.ApplyChunk("ghost", "text", nil)
	a.Complete("ghost")

	m, ok := reg.Message("m1")
	require.True(t, ok)
	assert.Empty(t, m.Content)
	assert.True(t, m.Streaming)
}
