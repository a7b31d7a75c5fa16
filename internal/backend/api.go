package backend

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/joescharf/cdesk/internal/bus"
	"github.com/joescharf/cdesk/internal/models"
)

const defaultMaxTokens = 4096

// APIBackend streams responses from the Anthropic API instead of driving a
// local CLI. Each session keeps its own conversation history in memory; a
// session here is just history plus an optional in-flight request.
type APIBackend struct {
	api    *anthropic.Client
	model  anthropic.Model
	events *bus.Bus
	log    Logger

	mu       sync.Mutex
	sessions map[string]*apiSession
}

type apiSession struct {
	history []anthropic.MessageParam
	cancel  context.CancelFunc // non-nil while a response is streaming
}

// NewAPIBackend creates an API-driven backend. An empty apiKey defers to the
// SDK's environment lookup.
func NewAPIBackend(apiKey, model string, events *bus.Bus, log Logger) *APIBackend {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &APIBackend{
		api:      &client,
		model:    anthropic.Model(model),
		events:   events,
		sessions: make(map[string]*apiSession),
		log:      log,
	}
}

// Start registers the session. workingDir and resume are accepted for
// interface parity but the API backend has no process to bind to a
// directory or resume.
func (b *APIBackend) Start(ctx context.Context, sessionID, workingDir, resume string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[sessionID]; ok {
		return nil
	}
	b.sessions[sessionID] = &apiSession{}

	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusStarting})
	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusReady})
	return nil
}

// Send appends a user turn and starts streaming the response.
func (b *APIBackend) Send(ctx context.Context, sessionID, content string) error {
	if strings.TrimSpace(content) == "" {
		return errf(CodeInvalidInput, "message content is empty")
	}

	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return errf(CodeNotRunning, "session %s is not started", sessionID)
	}
	if sess.cancel != nil {
		b.mu.Unlock()
		return errf(CodeInvalidInput, "session %s already has a response in flight", sessionID)
	}

	sess.history = append(sess.history, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
	history := make([]anthropic.MessageParam, len(sess.history))
	copy(history, sess.history)

	streamCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	b.mu.Unlock()

	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusBusy})
	go b.stream(streamCtx, sessionID, history)
	return nil
}

// Cancel aborts the in-flight response. The partial text streamed so far
// remains delivered; the turn is not added to history.
func (b *APIBackend) Cancel(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return errf(CodeNotRunning, "session %s is not started", sessionID)
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	return nil
}

// Stop drops the session and cancels any in-flight response.
func (b *APIBackend) Stop(sessionID string) error {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if ok {
		if sess.cancel != nil {
			sess.cancel()
		}
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if ok {
		b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusStopped})
	}
	return nil
}

// Running reports whether the session is registered.
func (b *APIBackend) Running(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[sessionID]
	return ok
}

// Close stops every session.
func (b *APIBackend) Close() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Stop(id)
	}
}

func (b *APIBackend) stream(ctx context.Context, sessionID string, history []anthropic.MessageParam) {
	messageID := uuid.NewString()

	stream := b.api.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: defaultMaxTokens,
		Messages:  history,
	})

	var text strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				text.WriteString(delta.Text)
				b.events.Publish(bus.OutputEvent{
					SessionID: sessionID,
					MessageID: messageID,
					Chunk:     delta.Text,
				})
			}
		}
	}

	err := stream.Err()
	canceled := errors.Is(err, context.Canceled) || ctx.Err() != nil

	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if ok {
		sess.cancel = nil
		if err == nil && text.Len() > 0 {
			sess.history = append(sess.history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text.String())))
		}
	}
	b.mu.Unlock()
	if !ok {
		// Stopped mid-stream; Stop already published the final status.
		return
	}

	if err != nil && !canceled {
		b.events.Publish(bus.ErrorEvent{SessionID: sessionID, Err: err.Error(), Recoverable: true})
	}
	b.events.Publish(bus.OutputEvent{
		SessionID: sessionID,
		MessageID: messageID,
		Complete:  true,
	})
	b.events.Publish(bus.StatusEvent{SessionID: sessionID, Status: models.StatusReady})
}
