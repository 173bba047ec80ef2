package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

type observed struct {
	mu    sync.Mutex
	calls map[string][]bool
}

func (o *observed) ObserveEvent(eventType string, _ time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string][]bool{}
	}
	o.calls[eventType] = append(o.calls[eventType], ok)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEvent struct {
	shared.BaseEvent
}


func testEvent(t shared.EventType) shared.Event {
	return stubEvent{shared.BaseEvent{Type: t, Timestamp: time.Now(), Aggregate: "user-1"}}
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	obs := &observed{}
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger(), Observer: obs, DeadLetterSize: 10})

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventStepAdvanced, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(testEvent(shared.EventStepAdvanced)))
	require.NoError(t, bus.Publish(testEvent(shared.EventPaymentFailed)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
	assert.Equal(t, []bool{true, true}, obs.calls[string(shared.EventStepAdvanced)])
}

func TestInMemoryEventBus_FailuresAreDeadLettered(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger(), DeadLetterSize: 2})

	require.NoError(t, bus.Subscribe(shared.EventPaymentFailed, func(shared.Event) error { return errors.New("smtp down") }))
	require.NoError(t, bus.Subscribe(shared.EventAccountCreated, func(shared.Event) error { panic("boom") }))

	require.NoError(t, bus.Publish(testEvent(shared.EventPaymentFailed)))
	require.NoError(t, bus.Publish(testEvent(shared.EventAccountCreated)))
	require.NoError(t, bus.Publish(testEvent(shared.EventPaymentFailed)))

	entries := bus.DeadLetters().Entries()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Error, ErrHandlerPanic.Error())
	assert.Equal(t, "smtp down", entries[1].Error)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: quietLogger()})

	var n atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventStepAdvanced, func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		n.Add(1)
		return nil
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, bus.Publish(testEvent(shared.EventStepAdvanced)))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(2), n.Load())

	assert.ErrorIs(t, bus.Publish(testEvent(shared.EventStepAdvanced)), ErrEventBusClosed)
}

func TestInMemoryEventBus_UseWrapsEarlierSubscriptions(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger()})

	var order []string
	require.NoError(t, bus.Subscribe(shared.EventAccountCreated, func(shared.Event) error {
		order = append(order, "handler")
		return nil
	}))
	bus.Use(func(next shared.EventHandler) shared.EventHandler {
		return func(e shared.Event) error {
			order = append(order, "middleware")
			return next(e)
		}
	})

	require.NoError(t, bus.Publish(testEvent(shared.EventAccountCreated)))
	assert.Equal(t, []string{"middleware", "handler"}, order)
}

func TestInMemoryEventBus_NestedPublish(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger()})

	var completed atomic.Bool
	require.NoError(t, bus.Subscribe(shared.EventStepAdvanced, func(shared.Event) error {
		return bus.Publish(testEvent(shared.EventRegistrationCompleted))
	}))
	require.NoError(t, bus.Subscribe(shared.EventRegistrationCompleted, func(shared.Event) error {
		completed.Store(true)
		return nil
	}))

	require.NoError(t, bus.Publish(testEvent(shared.EventStepAdvanced)))
	assert.True(t, completed.Load())
}

func TestDeadLetterQueue_Ring(t *testing.T) {
	q := NewDeadLetterQueue(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		q.Add(DeadLetterEntry{Error: msg})
	}

	entries := q.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Error)
	assert.Equal(t, "e", entries[2].Error)
	assert.Equal(t, 3, q.Size())
	assert.Equal(t, uint64(5), q.Total())
}
