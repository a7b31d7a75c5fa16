package models

import "time"

// SessionStatus represents the state of a session's assistant process.
type SessionStatus string

const (
	StatusStarting SessionStatus = "starting"
	StatusReady    SessionStatus = "ready"
	StatusBusy     SessionStatus = "busy"
	StatusStopped  SessionStatus = "stopped"
	StatusError    SessionStatus = "error"
)

// Session is one conversation bound to a working directory and an assistant process.
type Session struct {
	ID               string
	Title            string
	WorkingDirectory string
	ProjectID        string
	Status           SessionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionSummary is a listing row: a session plus message count and a preview
// of the most recent message.
type SessionSummary struct {
	ID               string
	Title            string
	WorkingDirectory string
	ProjectID        string
	MessageCount     int
	LastMessage      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
