// Package activity classifies and records file-change activity, resolving
// authorship between assistant tool calls and watcher notifications.
package activity

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/cdesk/internal/models"
)

// maxEntries caps the per-session ring; the oldest entries are evicted first.
const maxEntries = 500

// attributionWindow is how long after an assistant tool write a watcher
// notification for the same path is still attributed to the assistant.
const attributionWindow = 2 * time.Second

// fileWriteTools are the tool names that modify files.
var fileWriteTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
	"write_file":   true,
	"edit_file":    true,
	"create_file":  true,
}

// pathKeys are the conventional tool-input keys that may carry a file path,
// checked in order.
var pathKeys = []string{"file_path", "path", "filePath", "filename", "file"}

// Filter narrows Filtered queries by operation.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterCreated  Filter = "created"
	FilterModified Filter = "modified"
	FilterDeleted  Filter = "deleted"
)

// Correlator keeps a bounded, newest-first activity feed per session and the
// recent-assistant-write bookkeeping used for source attribution.
type Correlator struct {
	mu sync.RWMutex

	entries map[string][]*models.ActivityEntry

	// assistantWrites maps session id -> path -> time of the last
	// assistant-attributed write, pruned past the attribution window.
	assistantWrites map[string]map[string]time.Time

	window time.Duration
	now    func() time.Time
}

// New creates an empty correlator.
func New() *Correlator {
	return &Correlator{
		entries:         make(map[string][]*models.ActivityEntry),
		assistantWrites: make(map[string]map[string]time.Time),
		window:          attributionWindow,
		now:             time.Now,
	}
}

// RecordToolUse inspects a tool invocation and, when the tool is a file
// writer with a recognizable path input, proactively records an
// assistant-attributed entry. Returns the recorded entry, or nil when the
// tool is not a file write or carries no path.
func (c *Correlator) RecordToolUse(sessionID, toolName string, input json.RawMessage) *models.ActivityEntry {
	if !fileWriteTools[toolName] {
		return nil
	}
	path := extractPath(input)
	if path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	writes, ok := c.assistantWrites[sessionID]
	if !ok {
		writes = make(map[string]time.Time)
		c.assistantWrites[sessionID] = writes
	}
	writes[path] = now

	return c.record(&models.ActivityEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Path:      path,
		Operation: models.OpModified,
		Source:    models.SourceAssistant,
		Timestamp: now,
	})
}

// RecordFileChange records a watcher notification. A change whose path has a
// recent assistant write for the same session is attributed to the assistant
// even when the watcher fired first across the process boundary; otherwise
// the reported source stands.
func (c *Correlator) RecordFileChange(sessionID, path string, op models.FileOperation, source models.ChangeSource, ts time.Time) *models.ActivityEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if writes, ok := c.assistantWrites[sessionID]; ok {
		for p, t := range writes {
			if now.Sub(t) >= c.window {
				delete(writes, p)
			}
		}
		if _, recent := writes[path]; recent {
			source = models.SourceAssistant
		}
	}

	if ts.IsZero() {
		ts = now
	}
	return c.record(&models.ActivityEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Path:      path,
		Operation: op,
		Source:    source,
		Timestamp: ts,
	})
}

// record inserts at the front and truncates beyond the cap. Caller holds the lock.
func (c *Correlator) record(e *models.ActivityEntry) *models.ActivityEntry {
	list := append([]*models.ActivityEntry{e}, c.entries[e.SessionID]...)
	if len(list) > maxEntries {
		list = list[:maxEntries]
	}
	c.entries[e.SessionID] = list
	cp := *e
	return &cp
}

// Filtered returns the session's entries, newest first, narrowed by filter.
func (c *Correlator) Filtered(sessionID string, filter Filter) []*models.ActivityEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.ActivityEntry
	for _, e := range c.entries[sessionID] {
		if filter != "" && filter != FilterAll && string(e.Operation) != string(filter) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// Clear drops the session's feed and attribution state.
func (c *Correlator) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	delete(c.assistantWrites, sessionID)
}

// extractPath pulls a file path out of structured tool input by checking the
// conventional key names in order.
func extractPath(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	for _, key := range pathKeys {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
