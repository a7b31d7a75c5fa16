package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cdesk/internal/bus"
	"github.com/joescharf/cdesk/internal/models"
)

type nopLogger struct{}

func (nopLogger) VerboseLog(string, ...any) {}
func (nopLogger) Warning(string, ...any)    {}

func newTestManager(t *testing.T) (*Manager, *bus.Bus) {
	t.Helper()
	b := bus.New()
	m := NewManager(b, nopLogger{})
	t.Cleanup(m.Close)
	return m, b
}

func TestStartStop(t *testing.T) {
	m, _ := newTestManager(t)
	dir := t.TempDir()

	require.NoError(t, m.Start("s1", dir, nil))
	assert.True(t, m.IsWatching("s1"))

	m.Stop("s1")
	assert.False(t, m.IsWatching("s1"))

	// Idempotent
	m.Stop("s1")
	assert.False(t, m.IsWatching("s1"))
}

func TestStart_MissingDirectoryStaysIdle(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Start("s1", filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
	var startErr *StartError
	assert.ErrorAs(t, err, &startErr)
	assert.Equal(t, "s1", startErr.SessionID)
	assert.False(t, m.IsWatching("s1"))
}

func TestStart_RebindReplacesWatch(t *testing.T) {
	m, _ := newTestManager(t)
	dirA := t.TempDir()
	dirB := t.TempDir()

	require.NoError(t, m.Start("s1", dirA, nil))
	require.NoError(t, m.Start("s1", dirB, nil))
	assert.True(t, m.IsWatching("s1"))

	// One watch total; a single stop reaches idle.
	m.Stop("s1")
	assert.False(t, m.IsWatching("s1"))
}

func TestStart_ConcurrentStartsYieldOneWatch(t *testing.T) {
	m, _ := newTestManager(t)
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Start("s1", dir, nil)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	n := len(m.watches)
	m.mu.Unlock()
	assert.LessOrEqual(t, n, 1, "at most one live watch per session")

	m.Stop("s1")
	assert.False(t, m.IsWatching("s1"))
}

func TestStop_DuringStartDiscardsFreshWatch(t *testing.T) {
	m, _ := newTestManager(t)

	// A start is in flight: the latch is held and any old watch has
	// already been removed from the table.
	m.mu.Lock()
	m.starting["s1"] = true
	m.mu.Unlock()

	m.Stop("s1")

	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	w := &watch{fsw: fsw, dir: t.TempDir(), ign: ignore.CompileIgnoreLines(), done: make(chan struct{})}

	// The in-flight start must honor the stop instead of installing a
	// watch the stop could no longer see.
	installed := m.install("s1", w)
	assert.False(t, installed, "watch installed despite stop during start")
	if !installed {
		w.close()
	}
	assert.False(t, m.IsWatching("s1"))

	// The request is consumed; a later start is unaffected.
	m.mu.Lock()
	delete(m.starting, "s1")
	m.mu.Unlock()
	require.NoError(t, m.Start("s1", t.TempDir(), nil))
	assert.True(t, m.IsWatching("s1"))
}

func TestWatchPublishesFileChange(t *testing.T) {
	m, b := newTestManager(t)
	dir := t.TempDir()

	got := make(chan bus.FileChangeEvent, 8)
	cancel := b.Subscribe(func(e bus.Event) {
		if fc, ok := e.(bus.FileChangeEvent); ok {
			got <- fc
		}
	})
	defer cancel()

	require.NoError(t, m.Start("s1", dir, nil))

	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	select {
	case e := <-got:
		assert.Equal(t, "s1", e.SessionID)
		assert.Equal(t, path, e.Path)
		assert.Equal(t, models.SourceExternal, e.Source)
	case <-time.After(3 * time.Second):
		t.Fatal("no file-change event published")
	}
}

func TestWatchIgnoresPatternedPaths(t *testing.T) {
	m, b := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0755))

	got := make(chan bus.FileChangeEvent, 8)
	cancel := b.Subscribe(func(e bus.Event) {
		if fc, ok := e.(bus.FileChangeEvent); ok {
			got <- fc
		}
	})
	defer cancel()

	require.NoError(t, m.Start("s1", dir, []string{"*.log"}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("x"), 0644))

	select {
	case e := <-got:
		assert.Equal(t, filepath.Join(dir, "kept.txt"), e.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no file-change event published")
	}

	select {
	case e := <-got:
		t.Fatalf("unexpected extra event for %s", e.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIgnored(t *testing.T) {
	ign := ignore.CompileIgnoreLines(append(append([]string{}, defaultIgnorePatterns...), "*.log")...)

	cases := []struct {
		rel  string
		want bool
	}{
		{"src/main.go", false},
		{".git/HEAD", true},
		{"node_modules/pkg/index.js", true},
		{"debug.log", true},
		{"a.swp", true},
		{"dist/bundle.js", true},
		{"README.md", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ignored(ign, "/repo", filepath.Join("/repo", tc.rel)), tc.rel)
	}
}
