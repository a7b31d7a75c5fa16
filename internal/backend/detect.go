package backend

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// ProcessDetector checks whether an external assistant process is already
// running in a directory. Used to warn before binding a second assistant to
// the same working tree.
type ProcessDetector interface {
	IsAssistantRunning(dir string) bool
}

// OSProcessDetector detects assistant processes using pgrep + lsof
// (macOS/Linux).
type OSProcessDetector struct{}

// IsAssistantRunning returns true if a `claude` process has its cwd at or
// under dir.
func (d *OSProcessDetector) IsAssistantRunning(dir string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	out, err := exec.Command("pgrep", "-x", "claude").Output()
	if err != nil {
		return false // pgrep not found or no matches
	}

	for pid := range strings.FieldsSeq(strings.TrimSpace(string(out))) {
		cwd := processCwd(pid)
		if cwd == "" {
			continue
		}
		absCwd, err := filepath.Abs(cwd)
		if err != nil {
			continue
		}
		if absCwd == absDir || strings.HasPrefix(absCwd, absDir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// processCwd resolves the current working directory of a process via lsof.
func processCwd(pid string) string {
	out, err := exec.Command("lsof", "-a", "-p", pid, "-d", "cwd", "-Fn").Output()
	if err != nil {
		return ""
	}
	for line := range strings.SplitSeq(string(out), "\n") {
		if strings.HasPrefix(line, "n") && !strings.HasPrefix(line, "n ") {
			return line[1:]
		}
	}
	return ""
}
