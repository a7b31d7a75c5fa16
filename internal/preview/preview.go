// Package preview drives the debounced refresh signal for the locally
// served web app preview.
package preview

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/cdesk/internal/bus"
)

// DefaultDelay is the trailing-edge debounce window.
const DefaultDelay = 500 * time.Millisecond

// refreshExtensions is the allowlist of extensions that qualify a file
// change for a preview refresh: markup, style, script, and template families.
var refreshExtensions = map[string]bool{
	".html": true, ".htm": true,
	".css": true, ".scss": true, ".sass": true, ".less": true,
	".js": true, ".jsx": true, ".mjs": true,
	".ts": true, ".tsx": true,
	".vue": true, ".svelte": true,
	".ejs": true, ".hbs": true, ".twig": true,
}

// Debouncer batches qualifying file-change events for the bound session into
// a single delayed refresh trigger. It is subscribed to the bus only while
// auto-refresh is enabled and a session is bound.
type Debouncer struct {
	events *bus.Bus
	delay  time.Duration

	mu          sync.Mutex
	sessionID   string
	enabled     bool
	unsubscribe func()
	timer       *time.Timer
	// timerGen identifies the current timer arming. A timer callback that
	// expired before cancelTimer could Stop it carries a stale generation
	// and must not touch the counter or the replacement timer.
	timerGen  int
	counter   int
	onRefresh func(count int)
}

// New creates a debouncer with the default delay. onRefresh is invoked with
// the new counter value each time the window expires; it may be nil.
func New(events *bus.Bus, onRefresh func(count int)) *Debouncer {
	return &Debouncer{events: events, delay: DefaultDelay, onRefresh: onRefresh}
}

// Bind points the debouncer at a session; "" unbinds. Pending timers from
// the previous session are discarded.
func (d *Debouncer) Bind(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessionID == sessionID {
		return
	}
	d.sessionID = sessionID
	d.cancelTimer()
	d.syncSubscription()
}

// SetEnabled toggles auto-refresh. Disabling cancels any pending trigger.
func (d *Debouncer) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled == enabled {
		return
	}
	d.enabled = enabled
	if !enabled {
		d.cancelTimer()
	}
	d.syncSubscription()
}

// Counter returns the monotonically increasing refresh counter.
func (d *Debouncer) Counter() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counter
}

// Close unsubscribes and cancels any pending trigger.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = ""
	d.enabled = false
	d.cancelTimer()
	d.syncSubscription()
}

// syncSubscription keeps the bus subscription matched to (enabled && bound).
// Caller holds the lock.
func (d *Debouncer) syncSubscription() {
	want := d.enabled && d.sessionID != ""
	have := d.unsubscribe != nil
	switch {
	case want && !have:
		d.unsubscribe = d.events.Subscribe(d.handle)
	case !want && have:
		d.unsubscribe()
		d.unsubscribe = nil
	}
}

// handle restarts the delay timer on each qualifying event for the bound
// session: trailing-edge debounce, one trigger per quiet window.
func (d *Debouncer) handle(e bus.Event) {
	fc, ok := e.(bus.FileChangeEvent)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if fc.SessionID != d.sessionID || !Qualifies(fc.Path) {
		return
	}
	d.cancelTimer()
	gen := d.timerGen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs when the delay timer expires. A mismatched generation means a
// cancel or re-arm superseded this timer after it expired; the callback then
// does nothing.
func (d *Debouncer) fire(gen int) {
	d.mu.Lock()
	if gen != d.timerGen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.counter++
	count := d.counter
	cb := d.onRefresh
	d.mu.Unlock()

	if cb != nil {
		cb(count)
	}
}

// cancelTimer stops a pending trigger and invalidates any callback already
// past its Stop. Caller holds the lock.
func (d *Debouncer) cancelTimer() {
	d.timerGen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Qualifies reports whether a path's extension is in the refresh allowlist.
func Qualifies(path string) bool {
	return refreshExtensions[strings.ToLower(filepath.Ext(path))]
}
