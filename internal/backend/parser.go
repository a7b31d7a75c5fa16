package backend

import (
	"encoding/json"
	"fmt"
)

// StreamEventKind discriminates parsed CLI stream events.
type StreamEventKind int

const (
	// EventUnknown covers event types we deliberately ignore
	// (content_block_start/stop, message_start/delta, ping, ...).
	EventUnknown StreamEventKind = iota
	// EventAssistant marks the start of an assistant response.
	EventAssistant
	// EventTextDelta carries streamed response text.
	EventTextDelta
	// EventToolUse reports a tool invocation.
	EventToolUse
	// EventToolResult reports a finished tool invocation.
	EventToolResult
	// EventMessageStop marks response completion.
	EventMessageStop
	// EventError reports an assistant-side error.
	EventError
)

// StreamEvent is one parsed line of the CLI's NDJSON output. Only the
// fields relevant to the Kind are populated.
type StreamEvent struct {
	Kind StreamEventKind

	MessageID string          // EventAssistant
	Text      string          // EventTextDelta
	ToolName  string          // EventToolUse
	ToolInput json.RawMessage // EventToolUse
	ToolUseID string          // EventToolUse, EventToolResult
	Content   string          // EventToolResult
	Message   string          // EventError
}

// rawEvent mirrors the CLI's per-line envelope.
type rawEvent struct {
	Type    string `json:"type"`
	Message *struct {
		ID string `json:"id"`
	} `json:"message"`
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   string          `json:"content"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ParseStreamLine parses a single NDJSON line of claude CLI output.
func ParseStreamLine(line string) (StreamEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return StreamEvent{}, errf(CodeCLIError, "JSON parse error: %v", err)
	}

	switch raw.Type {
	case "assistant":
		ev := StreamEvent{Kind: EventAssistant}
		if raw.Message != nil {
			ev.MessageID = raw.Message.ID
		}
		return ev, nil

	case "content_block_delta":
		if raw.Delta != nil && raw.Delta.Text != "" {
			return StreamEvent{Kind: EventTextDelta, Text: raw.Delta.Text}, nil
		}
		return StreamEvent{Kind: EventUnknown}, nil

	case "tool_use":
		name := raw.Name
		if name == "" {
			name = "unknown"
		}
		return StreamEvent{
			Kind:      EventToolUse,
			ToolName:  name,
			ToolInput: raw.Input,
			ToolUseID: raw.ID,
		}, nil

	case "tool_result":
		return StreamEvent{
			Kind:      EventToolResult,
			ToolUseID: raw.ToolUseID,
			Content:   raw.Content,
		}, nil

	case "message_stop":
		return StreamEvent{Kind: EventMessageStop}, nil

	case "error":
		msg := "Unknown error"
		if raw.Error != nil && raw.Error.Message != "" {
			msg = raw.Error.Message
		}
		return StreamEvent{Kind: EventError, Message: msg}, nil

	default:
		return StreamEvent{Kind: EventUnknown}, nil
	}
}

func (k StreamEventKind) String() string {
	switch k {
	case EventAssistant:
		return "assistant"
	case EventTextDelta:
		return "text_delta"
	case EventToolUse:
		return "tool_use"
	case EventToolResult:
		return "tool_result"
	case EventMessageStop:
		return "message_stop"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}
