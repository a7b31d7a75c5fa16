// Package watcher owns filesystem watches, one per session, and publishes
// debounced file-change events onto the bus.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/joescharf/cdesk/internal/bus"
	"github.com/joescharf/cdesk/internal/models"
)

// Raw notifications for the same path within this window collapse into one event.
const debouncePeriod = 100 * time.Millisecond

// flushTick is how often pending notifications are checked against the window.
const flushTick = 50 * time.Millisecond

// defaultIgnorePatterns are always excluded from watching.
var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	".next",
	"target",
	"dist",
	"build",
	".DS_Store",
	"Thumbs.db",
	"*.swp",
	"*.swo",
	"*~",
	".idea",
	".vscode",
	"__pycache__",
	".pytest_cache",
	"*.pyc",
}

// StartError reports a watch that could not be established. The session
// stays idle; the failure is logged, never fatal.
type StartError struct {
	SessionID string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start watcher for session %s: %v", e.SessionID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Logger is the subset of output.UI the manager needs.
type Logger interface {
	VerboseLog(format string, a ...any)
	Warning(format string, a ...any)
}

// watch is one live filesystem watch bound to a session.
type watch struct {
	fsw  *fsnotify.Watcher
	dir  string
	ign  *ignore.GitIgnore
	done chan struct{}
}

// Manager starts and stops watches, at most one per session. Start and Stop
// are safe for concurrent use; the per-session starting latch prevents two
// overlapping start attempts from producing two live watches.
type Manager struct {
	events *bus.Bus
	log    Logger

	mu       sync.Mutex
	watches  map[string]*watch
	starting map[string]bool
	// stopRequested records a Stop that arrived while a Start for the same
	// session was in flight, after the old watch was already removed. The
	// in-flight Start honors it instead of installing a watch the Stop
	// could no longer see.
	stopRequested map[string]bool
}

// NewManager creates a manager publishing onto the given bus.
func NewManager(events *bus.Bus, log Logger) *Manager {
	return &Manager{
		events:        events,
		log:           log,
		watches:       make(map[string]*watch),
		starting:      make(map[string]bool),
		stopRequested: make(map[string]bool),
	}
}

// Start establishes a recursive watch on dir for the session. An existing
// watch for the session is stopped first; stop-then-start, never concurrent.
// A start already in flight for the session makes this call a no-op.
func (m *Manager) Start(sessionID, dir string, ignorePatterns []string) error {
	m.mu.Lock()
	if m.starting[sessionID] {
		m.mu.Unlock()
		return nil
	}
	m.starting[sessionID] = true
	old := m.watches[sessionID]
	delete(m.watches, sessionID)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.starting, sessionID)
		delete(m.stopRequested, sessionID)
		m.mu.Unlock()
	}()

	if old != nil {
		old.close()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return &StartError{SessionID: sessionID, Err: err}
	}
	if !info.IsDir() {
		return &StartError{SessionID: sessionID, Err: fmt.Errorf("not a directory: %s", dir)}
	}

	patterns := append(append([]string{}, defaultIgnorePatterns...), ignorePatterns...)
	ign := ignore.CompileIgnoreLines(patterns...)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &StartError{SessionID: sessionID, Err: err}
	}

	// fsnotify is not recursive; add every non-ignored subdirectory.
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignored(ign, dir, path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		_ = fsw.Close()
		return &StartError{SessionID: sessionID, Err: err}
	}

	w := &watch{fsw: fsw, dir: dir, ign: ign, done: make(chan struct{})}

	if !m.install(sessionID, w) {
		w.close()
		return nil
	}

	go m.run(sessionID, w)
	m.log.VerboseLog("watching %s for session %s", dir, sessionID)
	return nil
}

// install registers a freshly built watch unless a Stop arrived while the
// start was in flight, in which case the watch must be discarded.
func (m *Manager) install(sessionID string, w *watch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopRequested[sessionID] {
		delete(m.stopRequested, sessionID)
		return false
	}
	m.watches[sessionID] = w
	return true
}

// Stop tears down the session's watch. Stopping an already-stopped session
// is a no-op.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	w := m.watches[sessionID]
	delete(m.watches, sessionID)
	if w == nil && m.starting[sessionID] {
		m.stopRequested[sessionID] = true
	}
	m.mu.Unlock()

	if w != nil {
		w.close()
		m.log.VerboseLog("stopped watcher for session %s", sessionID)
	}
}

// IsWatching reports whether the session has a live watch.
func (m *Manager) IsWatching(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watches[sessionID] != nil
}

// Close stops every live watch. Failures during teardown are swallowed;
// cleanup must never fail.
func (m *Manager) Close() {
	m.mu.Lock()
	watches := m.watches
	m.watches = make(map[string]*watch)
	m.mu.Unlock()

	for _, w := range watches {
		w.close()
	}
}

func (w *watch) close() {
	close(w.done)
	_ = w.fsw.Close()
}

// pending is a raw notification waiting out the debounce window.
type pending struct {
	op   models.FileOperation
	seen time.Time
}

// run drains fsnotify events for one watch, collapses bursts per path, and
// publishes file-change events. Newly created directories are added to the
// watch on the fly.
func (m *Manager) run(sessionID string, w *watch) {
	ticker := time.NewTicker(flushTick)
	defer ticker.Stop()

	queue := make(map[string]pending)

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			op, relevant := classify(ev)
			if !relevant {
				continue
			}
			if ignored(w.ign, w.dir, ev.Name) {
				continue
			}
			if op == models.OpCreated {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(ev.Name)
					continue
				}
			}
			queue[ev.Name] = pending{op: op, seen: time.Now()}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			m.log.Warning("watcher error for session %s: %v", sessionID, err)

		case now := <-ticker.C:
			for path, p := range queue {
				if now.Sub(p.seen) < debouncePeriod {
					continue
				}
				delete(queue, path)
				m.events.Publish(bus.FileChangeEvent{
					SessionID: sessionID,
					Path:      path,
					Operation: p.op,
					Source:    models.SourceExternal,
					Timestamp: now.UTC(),
				})
			}
		}
	}
}

// classify maps an fsnotify event to a file operation.
func classify(ev fsnotify.Event) (models.FileOperation, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		return models.OpCreated, true
	case ev.Has(fsnotify.Write):
		return models.OpModified, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return models.OpDeleted, true
	default:
		return "", false
	}
}

// ignored reports whether path matches the ignore patterns, evaluated
// against the path relative to the watch root.
func ignored(ign *ignore.GitIgnore, root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	return ign.MatchesPath(rel)
}
