// Package bus is the in-process event bus between the backend and the
// session coordinator. Backends publish each session's events from a single
// goroutine, so synchronous dispatch preserves per-session order; ordering
// across sessions is not guaranteed.
package bus

import (
	"sync"
	"time"

	"github.com/joescharf/cdesk/internal/models"
)

// Event is a push notification from the backend. Concrete types below.
type Event interface {
	Session() string
}

// OutputEvent carries one streamed chunk of an assistant message.
// A terminal chunk has Complete set and an empty Chunk.
type OutputEvent struct {
	SessionID string
	MessageID string
	Chunk     string
	Complete  bool
	ToolUsage *models.ToolUsage
}

// StatusEvent reports an assistant process status transition.
type StatusEvent struct {
	SessionID string
	Status    models.SessionStatus
	Err       string
}

// ErrorEvent reports an assistant error. Recoverable errors are transient
// notices; unrecoverable ones force the session into the error state.
type ErrorEvent struct {
	SessionID   string
	Err         string
	Recoverable bool
}

// FileChangeEvent reports a filesystem change under a watched directory.
type FileChangeEvent struct {
	SessionID string
	Path      string
	Operation models.FileOperation
	Source    models.ChangeSource
	Timestamp time.Time
}

func (e OutputEvent) Session() string     { return e.SessionID }
func (e StatusEvent) Session() string     { return e.SessionID }
func (e ErrorEvent) Session() string      { return e.SessionID }
func (e FileChangeEvent) Session() string { return e.SessionID }

// Handler receives published events. Handlers must not block.
type Handler func(Event)

// Bus fans published events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a cancel func that removes it.
// Cancel is idempotent.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers the event to every subscriber in the caller's goroutine.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
