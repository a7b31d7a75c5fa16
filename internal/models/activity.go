package models

import "time"

// FileOperation is the kind of filesystem change observed.
type FileOperation string

const (
	OpCreated  FileOperation = "created"
	OpModified FileOperation = "modified"
	OpDeleted  FileOperation = "deleted"
)

// ChangeSource attributes a file change to its originating actor.
type ChangeSource string

const (
	SourceAssistant ChangeSource = "assistant"
	SourceExternal  ChangeSource = "external"
)

// ActivityEntry is one recorded file change attributed to an actor.
type ActivityEntry struct {
	ID        string
	SessionID string
	Path      string
	Operation FileOperation
	Source    ChangeSource
	Timestamp time.Time
}
