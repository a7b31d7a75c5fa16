//go:build !windows

package lock

import "syscall"

// processAlive tests for an existing process with signal 0, which probes
// without delivering anything.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
