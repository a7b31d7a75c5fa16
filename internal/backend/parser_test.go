package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextDelta(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello "}}`)
	require.NoError(t, err)
	assert.Equal(t, EventTextDelta, ev.Kind)
	assert.Equal(t, "Hello ", ev.Text)
}

func TestParseAssistant(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"assistant","message":{"id":"msg_123"}}`)
	require.NoError(t, err)
	assert.Equal(t, EventAssistant, ev.Kind)
	assert.Equal(t, "msg_123", ev.MessageID)

	// Missing message id is tolerated
	ev, err = ParseStreamLine(`{"type":"assistant"}`)
	require.NoError(t, err)
	assert.Equal(t, EventAssistant, ev.Kind)
	assert.Empty(t, ev.MessageID)
}

func TestParseMessageStop(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"message_stop"}`)
	require.NoError(t, err)
	assert.Equal(t, EventMessageStop, ev.Kind)
}

func TestParseToolUse(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"tool_use","id":"123","name":"write_file","input":{"path":"test.txt"}}`)
	require.NoError(t, err)
	assert.Equal(t, EventToolUse, ev.Kind)
	assert.Equal(t, "write_file", ev.ToolName)
	assert.Equal(t, "123", ev.ToolUseID)
	assert.JSONEq(t, `{"path":"test.txt"}`, string(ev.ToolInput))
}

func TestParseToolUse_MissingName(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"tool_use","id":"123"}`)
	require.NoError(t, err)
	assert.Equal(t, "unknown", ev.ToolName)
}

func TestParseToolResult(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"tool_result","tool_use_id":"123","content":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, EventToolResult, ev.Kind)
	assert.Equal(t, "123", ev.ToolUseID)
	assert.Equal(t, "ok", ev.Content)
}

func TestParseError(t *testing.T) {
	ev, err := ParseStreamLine(`{"type":"error","error":{"message":"Rate limited"}}`)
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Kind)
	assert.Equal(t, "Rate limited", ev.Message)

	ev, err = ParseStreamLine(`{"type":"error"}`)
	require.NoError(t, err)
	assert.Equal(t, "Unknown error", ev.Message)
}

func TestParseIgnoredTypes(t *testing.T) {
	for _, line := range []string{
		`{"type":"ping"}`,
		`{"type":"message_start"}`,
		`{"type":"message_delta"}`,
		`{"type":"content_block_start"}`,
		`{"type":"content_block_stop"}`,
		`{"type":"something_new"}`,
	} {
		ev, err := ParseStreamLine(line)
		require.NoError(t, err, line)
		assert.Equal(t, EventUnknown, ev.Kind, line)
	}
}

func TestParseMalformedLine(t *testing.T) {
	_, err := ParseStreamLine(`{not json`)
	require.Error(t, err)
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CodeCLIError, cmdErr.Code)
}
