package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitReachesSubscribers(t *testing.T) {
	bus := NewEventBus()
	var hits atomic.Int32

	bus.Subscribe(EventStepCompleted, "a", func(ctx context.Context, e Event) error {
		hits.Add(1)
		return nil
	})
	bus.Subscribe(EventStepCompleted, "b", func(ctx context.Context, e Event) error {
		hits.Add(1)
		return nil
	})
	bus.Subscribe(EventSessionFinished, "other", func(ctx context.Context, e Event) error {
		t.Error("wrong event type delivered")
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventStepCompleted, Source: "test"})
	bus.Wait()
	assert.Equal(t, int32(2), hits.Load())
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")
	bus.Subscribe(EventSessionStarted, "fails", func(context.Context, Event) error { return boom })
	bus.Subscribe(EventSessionStarted, "panics", func(context.Context, Event) error { panic("x") })

	err := bus.EmitSync(context.Background(), Event{Type: EventSessionStarted})
	assert.ErrorIs(t, err, boom)
}

func TestUnsubscribeAndStop(t *testing.T) {
	bus := NewEventBus()
	var hits atomic.Int32
	handler := func(context.Context, Event) error { hits.Add(1); return nil }

	bus.Subscribe(EventStepCompleted, "keep", handler)
	bus.Subscribe(EventStepCompleted, "drop", handler)
	bus.Unsubscribe(EventStepCompleted, "drop")
	assert.Equal(t, 1, bus.HandlerCount(EventStepCompleted))

	assert.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventStepCompleted}))
	assert.Equal(t, int32(1), hits.Load())

	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventStepCompleted})
	assert.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventStepCompleted}))
	assert.Equal(t, int32(1), hits.Load())
}
