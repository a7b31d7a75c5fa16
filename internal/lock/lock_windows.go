//go:build windows

package lock

import (
	"os"
	"syscall"
)

// processAlive probes the process with a zero signal. On Windows
// os.FindProcess always succeeds, so the Signal call does the real check.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
