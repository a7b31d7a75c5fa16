package models

import (
	"fmt"
	"time"
)

// Project groups sessions under a tracked repository and carries the
// local preview settings for it.
type Project struct {
	ID          string
	Name        string
	Path        string
	Description string
	ServeCmd    string
	ServePort   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PreviewURL returns the local URL the project's dev server listens on,
// or "" when no serve port is configured.
func (p *Project) PreviewURL() string {
	if p.ServePort == 0 {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", p.ServePort)
}
