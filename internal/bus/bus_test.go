package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/cdesk/internal/models"
)

func TestSubscribePublish(t *testing.T) {
	b := New()

	var got []Event
	cancel := b.Subscribe(func(e Event) { got = append(got, e) })
	defer cancel()

	b.Publish(OutputEvent{SessionID: "s1", MessageID: "m1", Chunk: "hi"})
	b.Publish(StatusEvent{SessionID: "s1", Status: models.StatusReady})

	assert.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].Session())

	out, ok := got[0].(OutputEvent)
	assert.True(t, ok)
	assert.Equal(t, "hi", out.Chunk)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	cancel := b.Subscribe(func(Event) { count++ })

	b.Publish(StatusEvent{SessionID: "s1", Status: models.StatusBusy})
	cancel()
	cancel() // idempotent
	b.Publish(StatusEvent{SessionID: "s1", Status: models.StatusReady})

	assert.Equal(t, 1, count)
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()

	a, c := 0, 0
	cancelA := b.Subscribe(func(Event) { a++ })
	cancelC := b.Subscribe(func(Event) { c++ })
	defer cancelA()
	defer cancelC()

	b.Publish(ErrorEvent{SessionID: "s1", Err: "boom", Recoverable: true})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}
