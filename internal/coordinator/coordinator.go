// Package coordinator is the orchestration root: it owns the event loop that
// applies bus events to the registry, and exposes the session lifecycle
// operations the UI layer calls.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/cdesk/internal/activity"
	"github.com/joescharf/cdesk/internal/assembler"
	"github.com/joescharf/cdesk/internal/backend"
	"github.com/joescharf/cdesk/internal/bus"
	"github.com/joescharf/cdesk/internal/models"
	"github.com/joescharf/cdesk/internal/preview"
	"github.com/joescharf/cdesk/internal/registry"
	"github.com/joescharf/cdesk/internal/store"
	"github.com/joescharf/cdesk/internal/watcher"
)

var (
	ErrSessionCreate = errors.New("session create failed")
	ErrSessionLoad   = errors.New("session load failed")
)

// Logger is the subset of output.UI the coordinator needs.
type Logger interface {
	VerboseLog(format string, a ...any)
	Warning(format string, a ...any)
}

// Notification is a user-facing notice raised by the coordinator. Sticky
// notifications stay until dismissed; others the UI may auto-dismiss.
type Notification struct {
	ID        string
	SessionID string
	Message   string
	Sticky    bool
	CreatedAt time.Time
}

// Options carries the coordinator's tunables.
type Options struct {
	// WatcherIgnore is merged with the built-in ignore set for every watch.
	WatcherIgnore []string
}

// Coordinator wires the bus to the assembler, correlator, and registry, and
// drives the backend and store. All bus events funnel through a single inbox
// channel drained by one goroutine, so per-session event order is preserved
// and event handling never races with itself.
type Coordinator struct {
	reg      *registry.Registry
	store    store.Store
	backend  backend.Backend
	events   *bus.Bus
	asm      *assembler.Assembler
	activity *activity.Correlator
	watches  *watcher.Manager
	preview  *preview.Debouncer
	log      Logger
	opts     Options

	inbox       chan bus.Event
	unsubscribe func()
	quit        chan struct{}
	loopDone    chan struct{}
	closeOnce   sync.Once

	// updates is a coalescing signal for the UI: something in the read
	// model changed, re-render.
	updates chan struct{}

	mu sync.Mutex
	// streaming maps session id to the local id of its in-flight
	// assistant message.
	streaming map[string]string
	// aliases maps backend-assigned message ids to the local placeholder
	// id they reconcile to.
	aliases       map[string]string
	notifications []Notification
}

// New constructs the coordinator and starts its event loop. Call Close to
// tear it down.
func New(st store.Store, be backend.Backend, events *bus.Bus, log Logger, opts Options) *Coordinator {
	reg := registry.New()
	c := &Coordinator{
		reg:       reg,
		store:     st,
		backend:   be,
		events:    events,
		asm:       assembler.New(reg, log),
		activity:  activity.New(),
		watches:   watcher.NewManager(events, log),
		log:       log,
		opts:      opts,
		inbox:     make(chan bus.Event, 256),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		updates:   make(chan struct{}, 1),
		streaming: make(map[string]string),
		aliases:   make(map[string]string),
	}
	c.preview = preview.New(events, func(count int) { c.signal() })
	c.unsubscribe = events.Subscribe(func(e bus.Event) {
		// Publishers can still be in flight while Close runs; the quit
		// case keeps them from blocking on a dead inbox.
		select {
		case c.inbox <- e:
		case <-c.quit:
		}
	})
	go c.loop()
	return c
}

// Registry exposes the read model for the UI layer.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Updates signals after each applied event. The channel coalesces: a slow
// reader sees at least one signal, not one per event.
func (c *Coordinator) Updates() <-chan struct{} { return c.updates }

// Close tears down the subscription, watches, and backend. Never errors.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.unsubscribe()
		close(c.quit)
		<-c.loopDone
		c.preview.Close()
		c.watches.Close()
		c.backend.Close()
	})
}

// CreateSession creates and registers a new session and focuses its tab.
// On store failure nothing is registered.
func (c *Coordinator) CreateSession(ctx context.Context, workingDir, title string) (*models.Session, error) {
	if title == "" {
		title = filepath.Base(workingDir)
	}
	sess := &models.Session{
		Title:            title,
		WorkingDirectory: workingDir,
		Status:           models.StatusStopped,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	c.reg.AddSession(sess)
	c.reg.AddTab(&models.Tab{SessionID: sess.ID, Title: sess.Title})
	c.reg.SetActiveTab(sess.ID)
	c.preview.Bind(sess.ID)
	c.signal()
	return sess, nil
}

// LoadSession fetches the session and its full history from the store and
// replaces the registry entry atomically.
func (c *Coordinator) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := c.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionLoad, err)
	}
	msgs, err := c.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionLoad, err)
	}

	c.reg.ReplaceSession(sess, msgs)
	c.reg.AddTab(&models.Tab{SessionID: sess.ID, Title: sess.Title})
	c.reg.SetActiveTab(sess.ID)
	c.preview.Bind(sess.ID)
	c.signal()
	return sess, nil
}

// StartCLI asks the backend to start the session's assistant and binds a
// file watch to its working directory. Readiness arrives asynchronously as
// status events.
func (c *Coordinator) StartCLI(ctx context.Context, sessionID, resume string) error {
	sess := c.reg.Session(sessionID)
	if sess == nil {
		return fmt.Errorf("%w: unknown session %s", registry.ErrInvalidArgument, sessionID)
	}

	if err := c.backend.Start(ctx, sessionID, sess.WorkingDirectory, resume); err != nil {
		c.notify(sessionID, "Failed to start assistant: "+err.Error(), false)
		return err
	}

	if err := c.watches.Start(sessionID, sess.WorkingDirectory, c.opts.WatcherIgnore); err != nil {
		// The session still works without a watch; activity attribution
		// just loses external changes.
		c.log.Warning("file watcher for session %s: %v", sessionID, err)
		c.notify(sessionID, "File watching unavailable: "+err.Error(), false)
	}
	return nil
}

// SendMessage appends the user message plus a streaming assistant
// placeholder and marks the session busy before the backend call resolves,
// so the UI reflects the send immediately. On backend failure the optimistic
// messages and status stay and a notification is raised.
func (c *Coordinator) SendMessage(ctx context.Context, sessionID, content string) error {
	now := time.Now().UTC()
	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: now,
	}
	if err := c.reg.AppendMessage(sessionID, userMsg); err != nil {
		return err
	}
	placeholder := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Streaming: true,
		CreatedAt: now,
	}
	if err := c.reg.AppendMessage(sessionID, placeholder); err != nil {
		return err
	}

	c.mu.Lock()
	c.streaming[sessionID] = placeholder.ID
	c.mu.Unlock()
	c.signal()

	c.persistMessage(userMsg)

	// Mark the session busy up front rather than waiting for the backend's
	// status event, so the transition holds even when the send fails.
	c.reg.SetStatus(sessionID, models.StatusBusy)

	if err := c.backend.Send(ctx, sessionID, content); err != nil {
		c.notify(sessionID, "Failed to send message: "+err.Error(), false)
		return err
	}
	return nil
}

// CancelResponse asks the backend to cancel and clears the local streaming
// pointer unconditionally, so a lost cancel acknowledgment cannot leave the
// UI spinning.
func (c *Coordinator) CancelResponse(ctx context.Context, sessionID string) error {
	err := c.backend.Cancel(ctx, sessionID)
	if err != nil {
		c.log.VerboseLog("cancel for session %s: %v", sessionID, err)
	}

	c.mu.Lock()
	localID, ok := c.streaming[sessionID]
	delete(c.streaming, sessionID)
	for backendID, local := range c.aliases {
		if local == localID {
			delete(c.aliases, backendID)
		}
	}
	c.mu.Unlock()

	if ok {
		c.asm.Complete(localID)
		c.signal()
	}
	return err
}

// StopSession stops the session's assistant and its file watch. The session
// stays registered.
func (c *Coordinator) StopSession(sessionID string) error {
	c.watches.Stop(sessionID)
	return c.backend.Stop(sessionID)
}

// DeleteSession stops the session and removes it from both the store and
// the registry.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) error {
	c.watches.Stop(sessionID)
	if err := c.backend.Stop(sessionID); err != nil {
		c.log.VerboseLog("stop during delete of %s: %v", sessionID, err)
	}
	if err := c.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	c.reg.RemoveSession(sessionID)
	c.mu.Lock()
	delete(c.streaming, sessionID)
	c.mu.Unlock()
	c.signal()
	return nil
}

// SelectTab focuses the tab for the given session and retargets the
// preview debouncer at it.
func (c *Coordinator) SelectTab(sessionID string) {
	c.reg.SetActiveTab(sessionID)
	c.reg.SetTabDirty(sessionID, false)
	c.preview.Bind(sessionID)
	c.signal()
}

// SetPreviewEnabled arms or disarms automatic preview refresh.
func (c *Coordinator) SetPreviewEnabled(enabled bool) {
	c.preview.SetEnabled(enabled)
}

// PreviewRefreshCount returns the monotonically increasing refresh counter.
func (c *Coordinator) PreviewRefreshCount() int {
	return c.preview.Counter()
}

// ReorderTabs moves the tab at from to position to.
func (c *Coordinator) ReorderTabs(from, to int) error {
	if err := c.reg.ReorderTabs(from, to); err != nil {
		return err
	}
	c.signal()
	return nil
}

// Activity returns the in-memory activity entries for the session.
func (c *Coordinator) Activity(sessionID string, filter activity.Filter) []*models.ActivityEntry {
	return c.activity.Filtered(sessionID, filter)
}

// ClearActivity clears the session's activity both in memory and in the
// store.
func (c *Coordinator) ClearActivity(ctx context.Context, sessionID string) error {
	c.activity.Clear(sessionID)
	c.signal()
	if err := c.store.ClearActivity(ctx, sessionID); err != nil {
		c.log.Warning("clear activity for session %s: %v", sessionID, err)
		return err
	}
	return nil
}

// Notifications returns the current notices, newest first.
func (c *Coordinator) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// DismissNotification removes the notice with the given id.
func (c *Coordinator) DismissNotification(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.notifications {
		if n.ID == id {
			c.notifications = append(c.notifications[:i], c.notifications[i+1:]...)
			return
		}
	}
}

// loop is the single goroutine that applies bus events. Per-session FIFO is
// guaranteed by the backends emitting each session's events from one
// goroutine into the one inbox.
func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.quit:
			return
		case e := <-c.inbox:
			c.apply(e)
			c.signal()
		}
	}
}

func (c *Coordinator) apply(e bus.Event) {
	switch ev := e.(type) {
	case bus.OutputEvent:
		c.applyOutput(ev)
	case bus.StatusEvent:
		c.reg.SetStatus(ev.SessionID, ev.Status)
	case bus.ErrorEvent:
		if ev.Recoverable {
			c.notify(ev.SessionID, ev.Err, false)
			return
		}
		c.reg.SetStatus(ev.SessionID, models.StatusError)
		c.notify(ev.SessionID, ev.Err, true)
	case bus.FileChangeEvent:
		entry := c.activity.RecordFileChange(ev.SessionID, ev.Path, ev.Operation, ev.Source, ev.Timestamp)
		if entry != nil {
			c.persistActivity(entry)
			c.markDirty(ev.SessionID)
		}
	}
}

// applyOutput routes a chunk to its message, reconciling the backend's
// message id with the optimistic placeholder on first contact.
func (c *Coordinator) applyOutput(ev bus.OutputEvent) {
	localID := c.resolveMessageID(ev.SessionID, ev.MessageID)

	if ev.ToolUsage != nil {
		c.asm.ApplyChunk(localID, ev.Chunk, ev.ToolUsage)
		if entry := c.activity.RecordToolUse(ev.SessionID, ev.ToolUsage.Name, ev.ToolUsage.Input); entry != nil {
			c.persistActivity(entry)
		}
		c.markDirty(ev.SessionID)
		return
	}

	if ev.Complete {
		c.asm.Complete(localID)
		c.mu.Lock()
		if c.streaming[ev.SessionID] == localID {
			delete(c.streaming, ev.SessionID)
		}
		delete(c.aliases, ev.MessageID)
		c.mu.Unlock()

		if msg, ok := c.reg.Message(localID); ok {
			c.persistMessage(msg)
		}
		c.markDirty(ev.SessionID)
		return
	}

	c.asm.ApplyChunk(localID, ev.Chunk, nil)
	c.markDirty(ev.SessionID)
}

// resolveMessageID maps a backend message id onto the local placeholder. If
// the id is already known to the registry it is used as-is; otherwise the
// session's streaming placeholder adopts it.
func (c *Coordinator) resolveMessageID(sessionID, backendID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if local, ok := c.aliases[backendID]; ok {
		return local
	}
	if _, ok := c.reg.Message(backendID); ok {
		return backendID
	}
	if local, ok := c.streaming[sessionID]; ok {
		c.aliases[backendID] = local
		return local
	}
	return backendID
}

// markDirty flags the session's tab when it is not the focused one.
func (c *Coordinator) markDirty(sessionID string) {
	if c.reg.ActiveTabID() != sessionID {
		c.reg.SetTabDirty(sessionID, true)
	}
}

// persistMessage writes the message to the store; failure is logged, not
// retried, and the in-memory state stands.
func (c *Coordinator) persistMessage(m *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.SaveMessage(ctx, m); err != nil {
		c.log.Warning("persist message %s: %v", m.ID, err)
	}
}

func (c *Coordinator) persistActivity(e *models.ActivityEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.SaveActivity(ctx, e); err != nil {
		c.log.Warning("persist activity %s: %v", e.ID, err)
	}
}

func (c *Coordinator) notify(sessionID, message string, sticky bool) {
	c.mu.Lock()
	c.notifications = append([]Notification{{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message:   message,
		Sticky:    sticky,
		CreatedAt: time.Now().UTC(),
	}}, c.notifications...)
	c.mu.Unlock()
	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
