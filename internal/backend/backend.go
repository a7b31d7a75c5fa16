// Package backend runs the assistant for each session and streams its
// output onto the bus. Two implementations exist: CLIBackend drives the
// claude CLI as a subprocess, APIBackend talks to the Anthropic API.
package backend

import (
	"context"
	"fmt"
)

// Error codes reported over the command channel.
const (
	CodeCLINotFound  = "CLI_NOT_FOUND"
	CodeCLIError     = "CLI_ERROR"
	CodeNotRunning   = "NOT_RUNNING"
	CodeInvalidInput = "INVALID_INPUT"
)

// CommandError is a structured backend failure with a machine-readable code.
// The coordinator treats every CommandError as recoverable: notify, never fatal.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errf builds a CommandError.
func errf(code, format string, a ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, a...)}
}

// Backend is the command channel to the assistant process layer. Event
// delivery (output chunks, status transitions, errors) happens out-of-band
// on the bus; these calls only initiate work.
type Backend interface {
	// Start binds an assistant to the session's working directory. Starting
	// an already-running session is a no-op. Readiness arrives via status
	// events, not the return value.
	Start(ctx context.Context, sessionID, workingDir, resume string) error
	// Send submits a user message to the running assistant.
	Send(ctx context.Context, sessionID, content string) error
	// Cancel interrupts the in-flight response, if any.
	Cancel(ctx context.Context, sessionID string) error
	// Stop terminates the session's assistant. Idempotent.
	Stop(sessionID string) error
	// Running reports whether the session has a live assistant.
	Running(sessionID string) bool
	// Close stops every session.
	Close()
}
