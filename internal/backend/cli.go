package backend

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joescharf/cdesk/internal/bus"
	"github.com/joescharf/cdesk/internal/models"
)

// Logger is the subset of output.UI the backend needs.
type Logger interface {
	VerboseLog(format string, a ...any)
	Warning(format string, a ...any)
}

// CLIBackend runs one claude CLI subprocess per session and translates its
// NDJSON stdout into bus events. Each subprocess is read by a single
// goroutine, so event order per session matches the CLI's output order.
type CLIBackend struct {
	events *bus.Bus
	log    Logger

	mu    sync.Mutex
	procs map[string]*cliProc
}

type cliProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	stopOnce sync.Once
	// deliberate is set when Stop initiated the shutdown, so the reader
	// goroutine does not report the exit as an error.
	deliberate bool

	// messageID of the in-flight assistant message. Only the reader
	// goroutine touches it.
	messageID string
}

// NewCLIBackend returns a backend that drives the claude CLI.
func NewCLIBackend(events *bus.Bus, log Logger) *CLIBackend {
	return &CLIBackend{
		events: events,
		log:    log,
		procs:  make(map[string]*cliProc),
	}
}

// Start spawns the CLI bound to workingDir. If the session already has a
// live process, Start is a no-op.
func (b *CLIBackend) Start(ctx context.Context, sessionID, workingDir, resume string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.procs[sessionID]; ok {
		return nil
	}

	path, err := exec.LookPath("claude")
	if err != nil {
		return errf(CodeCLINotFound, "claude CLI not found in PATH")
	}
	if info, err := os.Stat(workingDir); err != nil || !info.IsDir() {
		return errf(CodeInvalidInput, "working directory %s does not exist", workingDir)
	}

	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if resume != "" {
		args = append(args, "--resume", resume)
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = workingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errf(CodeCLIError, "stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errf(CodeCLIError, "stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errf(CodeCLIError, "stderr pipe: %v", err)
	}

	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusStarting})

	if err := cmd.Start(); err != nil {
		b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusError, Err: err.Error()})
		return errf(CodeCLIError, "failed to start claude CLI: %v", err)
	}

	proc := &cliProc{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	b.procs[sessionID] = proc

	go b.readStderr(sessionID, stderr)
	go b.readStdout(sessionID, proc, stdout)

	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusReady})
	return nil
}

// Send writes a user message to the session's CLI and marks it busy.
func (b *CLIBackend) Send(ctx context.Context, sessionID, content string) error {
	if strings.TrimSpace(content) == "" {
		return errf(CodeInvalidInput, "message content is empty")
	}

	b.mu.Lock()
	proc, ok := b.procs[sessionID]
	b.mu.Unlock()
	if !ok {
		return errf(CodeNotRunning, "session %s has no running assistant", sessionID)
	}

	if _, err := io.WriteString(proc.stdin, content+"\n"); err != nil {
		return errf(CodeCLIError, "failed to write to claude CLI: %v", err)
	}
	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusBusy})
	return nil
}

// Cancel interrupts the in-flight response with SIGINT. The CLI keeps
// running and accepts further input.
func (b *CLIBackend) Cancel(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	proc, ok := b.procs[sessionID]
	b.mu.Unlock()
	if !ok {
		return errf(CodeNotRunning, "session %s has no running assistant", sessionID)
	}
	if err := proc.cmd.Process.Signal(os.Interrupt); err != nil {
		return errf(CodeCLIError, "failed to interrupt claude CLI: %v", err)
	}
	return nil
}

// Stop terminates the session's CLI process. Safe to call on a session that
// is not running.
func (b *CLIBackend) Stop(sessionID string) error {
	b.mu.Lock()
	proc, ok := b.procs[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	proc.stopOnce.Do(func() {
		proc.deliberate = true
		proc.stdin.Close()
		proc.cmd.Process.Kill()
	})
	<-proc.done
	return nil
}

// Running reports whether the session has a live CLI process.
func (b *CLIBackend) Running(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.procs[sessionID]
	return ok
}

// Close stops every running session.
func (b *CLIBackend) Close() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.procs))
	for id := range b.procs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Stop(id)
	}
}

// readStdout drains the CLI's NDJSON output until EOF, publishing bus
// events, then reports the process exit.
func (b *CLIBackend) readStdout(sessionID string, proc *cliProc, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, err := ParseStreamLine(line)
		if err != nil {
			b.log.VerboseLog("session %s: dropping malformed CLI line: %v", sessionID, err)
			continue
		}
		b.handle(sessionID, proc, ev)
	}

	err := proc.cmd.Wait()
	close(proc.done)

	b.mu.Lock()
	delete(b.procs, sessionID)
	b.mu.Unlock()

	if err != nil && !proc.deliberate {
		b.events.Publish(bus.ErrorEvent{
			SessionID:   sessionID,
			Err:         "claude CLI exited: " + err.Error(),
			Recoverable: false,
		})
		b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusError, Err: err.Error()})
		return
	}
	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusStopped})
}

func (b *CLIBackend) handle(sessionID string, proc *cliProc, ev StreamEvent) {
	switch ev.Kind {
	case EventAssistant:
		proc.messageID = ev.MessageID
		if proc.messageID == "" {
			proc.messageID = uuid.NewString()
		}

	case EventTextDelta:
		b.events.Publish(bus.OutputEvent{
			SessionID: sessionID,
			MessageID: b.currentMessage(proc),
			Chunk:     ev.Text,
		})

	case EventToolUse:
		b.events.Publish(bus.OutputEvent{
			SessionID: sessionID,
			MessageID: b.currentMessage(proc),
			ToolUsage: &models.ToolUsage{
				ID:     ev.ToolUseID,
				Name:   ev.ToolName,
				Input:  ev.ToolInput,
				Status: models.ToolRunning,
			},
		})

	case EventToolResult:
		b.log.VerboseLog("session %s: tool %s finished", sessionID, ev.ToolUseID)

	case EventMessageStop:
		b.events.Publish(bus.OutputEvent{
			SessionID: sessionID,
			MessageID: b.currentMessage(proc),
			Complete:  true,
		})
		b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusReady})
		proc.messageID = ""

	case EventError:
		b.events.Publish(bus.ErrorEvent{SessionID: sessionID, Err: ev.Message, Recoverable: true})
		b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusReady})
	}
}

// currentMessage returns the in-flight message id, allocating one when a
// delta arrives before its assistant envelope.
func (b *CLIBackend) currentMessage(proc *cliProc) string {
	if proc.messageID == "" {
		proc.messageID = uuid.NewString()
	}
	return proc.messageID
}

func (b *CLIBackend) readStderr(sessionID string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			b.log.VerboseLog("session %s: claude stderr: %s", sessionID, line)
		}
	}
}
