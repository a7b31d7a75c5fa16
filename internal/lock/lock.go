// Package lock provides a PID-file based single-instance lock so that two
// interactive chat processes do not drive the same assistant session
// concurrently.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Lock is a PID-file lock. Acquire writes the current process's PID; a
// second Acquire against the same path fails while the holder is alive.
type Lock struct {
	Path string
}

// New creates a lock backed by the given PID file path.
func New(path string) *Lock {
	return &Lock{Path: path}
}

// Acquire takes the lock for the current process. A stale PID file left by a
// dead process is overwritten.
func (l *Lock) Acquire() error {
	if pid, alive := l.Holder(); alive {
		return fmt.Errorf("already locked by running process %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(l.Path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// Release removes the PID file. Releasing a lock that was never acquired is
// not an error.
func (l *Lock) Release() error {
	err := os.Remove(l.Path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Holder reports the PID recorded in the lock file and whether that process
// is still alive. A missing or malformed file reports no holder.
func (l *Lock) Holder() (int, bool) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}
