// Package registry is the single source of truth for in-memory session,
// message, tab, and status state. Every mutation happens under one lock and
// is all-or-nothing; callers get copies, never interior pointers.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joescharf/cdesk/internal/models"
)

// ErrInvalidArgument reports a structurally invalid registry call (bad tab
// index, unknown session id). These are programmer errors, never swallowed.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNoMessage reports an unknown message id.
var ErrNoMessage = errors.New("no such message")

// Registry holds the canonical session/message/tab/status collections.
// A session id present in one collection is present in all of them.
type Registry struct {
	mu sync.RWMutex

	sessions map[string]*models.Session
	messages map[string][]*models.Message
	statuses map[string]models.SessionStatus

	// msgIndex maps a message id to its owning session. Maintained on
	// AppendMessage, dropped with RemoveSession.
	msgIndex map[string]string

	tabs        []*models.Tab
	activeTabID string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]*models.Message),
		statuses: make(map[string]models.SessionStatus),
		msgIndex: make(map[string]string),
	}
}

// AddSession inserts a session with an empty message list and stopped status.
// Adding an existing id overwrites the session but keeps its messages.
func (r *Registry) AddSession(s *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.sessions[s.ID] = &cp
	if _, ok := r.messages[s.ID]; !ok {
		r.messages[s.ID] = nil
	}
	if _, ok := r.statuses[s.ID]; !ok {
		r.statuses[s.ID] = models.StatusStopped
	}
}

// ReplaceSession atomically swaps a session and its full message history,
// leaving no partially-loaded intermediate state visible.
func (r *Registry) ReplaceSession(s *models.Session, messages []*models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[s.ID] {
		delete(r.msgIndex, m.ID)
	}

	cp := *s
	r.sessions[s.ID] = &cp
	if _, ok := r.statuses[s.ID]; !ok {
		r.statuses[s.ID] = models.StatusStopped
	}

	list := make([]*models.Message, 0, len(messages))
	for _, m := range messages {
		mc := *m
		list = append(list, &mc)
		r.msgIndex[m.ID] = s.ID
	}
	r.messages[s.ID] = list
}

// RemoveSession deletes the session, its messages, its status, and any tab
// referencing it. If the removed tab was active the first remaining tab is
// activated.
func (r *Registry) RemoveSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[id] {
		delete(r.msgIndex, m.ID)
	}
	delete(r.sessions, id)
	delete(r.messages, id)
	delete(r.statuses, id)

	for i, t := range r.tabs {
		if t.SessionID == id {
			r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)
			break
		}
	}
	if r.activeTabID == id {
		if len(r.tabs) > 0 {
			r.activeTabID = r.tabs[0].SessionID
		} else {
			r.activeTabID = ""
		}
	}
	r.syncActiveFlags()
}

// Session returns a copy of the session, or nil if absent.
func (r *Registry) Session(id string) *models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// Sessions returns copies of all sessions.
func (r *Registry) Sessions() []*models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// SetStatus records a session's status. Unknown ids are ignored: status
// events may arrive after a session was removed.
func (r *Registry) SetStatus(id string, status models.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	r.statuses[id] = status
	if s := r.sessions[id]; s != nil {
		s.Status = status
	}
}

// Status returns the session's status, or stopped for unknown ids.
func (r *Registry) Status(id string) models.SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if st, ok := r.statuses[id]; ok {
		return st
	}
	return models.StatusStopped
}

// --- Tabs ---

// AddTab appends and activates a tab for the session. If a tab for the
// session already exists it is just reactivated.
func (r *Registry) AddTab(t *models.Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tabs {
		if existing.SessionID == t.SessionID {
			r.activeTabID = t.SessionID
			r.syncActiveFlags()
			return
		}
	}
	cp := *t
	r.tabs = append(r.tabs, &cp)
	r.activeTabID = t.SessionID
	r.syncActiveFlags()
}

// RemoveTab removes the session's tab without touching the session itself.
// Removing the active tab activates the first remaining tab.
func (r *Registry) RemoveTab(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tabs {
		if t.SessionID == sessionID {
			r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)
			break
		}
	}
	if r.activeTabID == sessionID {
		if len(r.tabs) > 0 {
			r.activeTabID = r.tabs[0].SessionID
		} else {
			r.activeTabID = ""
		}
	}
	r.syncActiveFlags()
}

// ReorderTabs moves the tab at from so it ends up at position to.
func (r *Registry) ReorderTabs(from, to int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if from < 0 || from >= len(r.tabs) || to < 0 || to >= len(r.tabs) {
		return fmt.Errorf("%w: reorder tabs %d -> %d with %d tabs", ErrInvalidArgument, from, to, len(r.tabs))
	}
	t := r.tabs[from]
	r.tabs = append(r.tabs[:from], r.tabs[from+1:]...)
	r.tabs = append(r.tabs[:to], append([]*models.Tab{t}, r.tabs[to:]...)...)
	return nil
}

// SetActiveTab activates the tab with the given session id. An absent id
// deactivates all tabs.
func (r *Registry) SetActiveTab(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, t := range r.tabs {
		if t.SessionID == sessionID {
			found = true
			break
		}
	}
	if found {
		r.activeTabID = sessionID
	} else {
		r.activeTabID = ""
	}
	r.syncActiveFlags()
}

// SetTabDirty flags a tab as having unseen output.
func (r *Registry) SetTabDirty(sessionID string, dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tabs {
		if t.SessionID == sessionID {
			t.Dirty = dirty
			return
		}
	}
}

// ActiveTabID returns the active tab's session id, or "" when none is active.
func (r *Registry) ActiveTabID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeTabID
}

// Tabs returns copies of all tabs in display order.
func (r *Registry) Tabs() []*models.Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// syncActiveFlags keeps the per-tab Active flag consistent with activeTabID.
// Caller holds the lock.
func (r *Registry) syncActiveFlags() {
	for _, t := range r.tabs {
		t.Active = t.SessionID == r.activeTabID
	}
}

// --- Messages ---

// AppendMessage appends to the session's message sequence, indexes the
// message id, and bumps the session's UpdatedAt.
func (r *Registry) AppendMessage(sessionID string, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: unknown session %s", ErrInvalidArgument, sessionID)
	}
	cp := *m
	r.messages[sessionID] = append(r.messages[sessionID], &cp)
	r.msgIndex[m.ID] = sessionID
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Messages returns copies of the session's messages in order.
func (r *Registry) Messages(sessionID string) []*models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.messages[sessionID]
	out := make([]*models.Message, 0, len(list))
	for _, m := range list {
		cp := *m
		cp.ToolUsage = append([]models.ToolUsage(nil), m.ToolUsage...)
		out = append(out, &cp)
	}
	return out
}

// Message locates a message by id across all sessions via the index.
func (r *Registry) Message(messageID string) (*models.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.find(messageID)
	if m == nil {
		return nil, false
	}
	cp := *m
	cp.ToolUsage = append([]models.ToolUsage(nil), m.ToolUsage...)
	return &cp, true
}

// AppendChunk appends streamed text to the message's content.
func (r *Registry) AppendChunk(messageID, chunk string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(messageID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrNoMessage, messageID)
	}
	m.Content += chunk
	return nil
}

// AppendToolUsage attaches a tool-usage record in arrival order.
func (r *Registry) AppendToolUsage(messageID string, tu models.ToolUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(messageID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrNoMessage, messageID)
	}
	m.ToolUsage = append(m.ToolUsage, tu)
	return nil
}

// CompleteMessage clears the streaming flag.
func (r *Registry) CompleteMessage(messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(messageID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrNoMessage, messageID)
	}
	m.Streaming = false
	return nil
}

// find returns the live message pointer for an id. Caller holds the lock.
func (r *Registry) find(messageID string) *models.Message {
	sessionID, ok := r.msgIndex[messageID]
	if !ok {
		return nil
	}
	for _, m := range r.messages[sessionID] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}
