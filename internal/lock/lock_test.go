package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndHolder(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "chat.pid"))

	require.NoError(t, l.Acquire())

	pid, alive := l.Holder()
	assert.True(t, alive)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquire_LiveHolderBlocksSecondAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.pid")
	require.NoError(t, New(path).Acquire())

	err := New(path).Acquire()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already locked")
}

func TestAcquire_StaleFileIsOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.pid")
	// A very high PID that almost certainly doesn't exist.
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0o644))

	l := New(path)
	require.NoError(t, l.Acquire())

	pid, alive := l.Holder()
	assert.True(t, alive)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquire_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chat.pid")

	require.NoError(t, New(path).Acquire())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestHolder_MissingFile(t *testing.T) {
	pid, alive := New(filepath.Join(t.TempDir(), "none.pid")).Holder()
	assert.Equal(t, 0, pid)
	assert.False(t, alive)
}

func TestHolder_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	pid, alive := New(path).Holder()
	assert.Equal(t, 0, pid)
	assert.False(t, alive)
}

func TestRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.pid")
	l := New(path)
	require.NoError(t, l.Acquire())

	require.NoError(t, l.Release())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRelease_NeverAcquired(t *testing.T) {
	assert.NoError(t, New(filepath.Join(t.TempDir(), "none.pid")).Release())
}
