package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolStatus tracks the lifecycle of a single tool invocation.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolUsage records one tool invocation attached to an assistant message.
// Entries are appended in arrival order and never reordered.
type ToolUsage struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output string          `json:"output,omitempty"`
	Status ToolStatus      `json:"status"`
}

// Message is a single chat message. Assistant messages are created empty and
// accumulate content while Streaming is true; once complete they are immutable
// except for final persistence.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	ToolUsage []ToolUsage
	Streaming bool
	CreatedAt time.Time
}
