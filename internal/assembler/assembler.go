// Package assembler turns streamed output chunks into finished messages.
// Chunks are applied in bus-delivery order; the assembler never reorders
// or buffers.
package assembler

import (
	"github.com/joescharf/cdesk/internal/models"
	"github.com/joescharf/cdesk/internal/registry"
)

// Logger is the subset of output.UI the assembler needs.
type Logger interface {
	VerboseLog(format string, a ...any)
}

// Assembler accumulates chunks into registry messages keyed by message id.
type Assembler struct {
	reg *registry.Registry
	log Logger
}

// New creates an assembler writing through the given registry.
func New(reg *registry.Registry, log Logger) *Assembler {
	return &Assembler{reg: reg, log: log}
}

// ApplyChunk appends text (and an optional tool-usage record) to the message
// with the given id. A missing message is logged and dropped: the message may
// have been evicted, or the chunk may precede its placeholder.
func (a *Assembler) ApplyChunk(messageID, text string, tu *models.ToolUsage) {
	if text != "" {
		if err := a.reg.AppendChunk(messageID, text); err != nil {
			a.log.VerboseLog("drop chunk for %s: %v", messageID, err)
			return
		}
	}
	if tu != nil {
		if err := a.reg.AppendToolUsage(messageID, *tu); err != nil {
			a.log.VerboseLog("drop tool usage for %s: %v", messageID, err)
		}
	}
}

// Complete clears the streaming flag on the message. Persistence of the
// completed message is the coordinator's job, not the assembler's.
func (a *Assembler) Complete(messageID string) {
	if err := a.reg.CompleteMessage(messageID); err != nil {
		a.log.VerboseLog("complete unknown message %s: %v", messageID, err)
	}
}
