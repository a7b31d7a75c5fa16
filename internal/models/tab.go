package models

// Tab is the UI-facing handle selecting which session is focused.
// Tab identity equals session identity; no two tabs reference the same session.
type Tab struct {
	SessionID string
	Title     string
	Active    bool
	Dirty     bool
}
