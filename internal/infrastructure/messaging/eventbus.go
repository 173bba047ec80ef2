// Package messaging delivers domain events from committed commands to their
// handlers inside one process.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned by Subscribe and Publish after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps the value of a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// Observer receives one call per handler execution.
type Observer interface {
	ObserveEvent(eventType string, took time.Duration, ok bool)
}

// InMemoryEventBusConfig configures NewInMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers in the background; Publish returns at once.
	AsyncMode bool

	// WorkerPoolSize bounds concurrently running async handlers.
	WorkerPoolSize int

	// DeadLetterSize bounds the failed-event buffer. Zero disables it.
	DeadLetterSize int

	Logger   *slog.Logger
	Observer Observer
}

// DefaultInMemoryEventBusConfig returns an async bus with ten workers.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		DeadLetterSize: 100,
	}
}

// InMemoryEventBus implements shared.EventBus. Handler errors and panics
// never reach the publisher: they are logged, observed and dead-lettered.
type InMemoryEventBus struct {
	mu         sync.RWMutex
	byType     map[shared.EventType][]shared.EventHandler
	catchAll   []shared.EventHandler
	middleware []Middleware
	closed     bool

	async    bool
	slots    *semaphore.Weighted
	inflight sync.WaitGroup

	log      *slog.Logger
	observer Observer
	dlq      *DeadLetterQueue
}

// NewInMemoryEventBus creates a bus from config.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := config.WorkerPoolSize
	if workers <= 0 {
		workers = 10
	}

	b := &InMemoryEventBus{
		byType:   make(map[shared.EventType][]shared.EventHandler),
		async:    config.AsyncMode,
		slots:    semaphore.NewWeighted(int64(workers)),
		log:      log.With("component", "event_bus"),
		observer: config.Observer,
	}
	if config.DeadLetterSize > 0 {
		b.dlq = NewDeadLetterQueue(config.DeadLetterSize)
	}
	return b
}

// Use adds middleware around every handler, including those subscribed
// before the call. The first middleware is outermost.
func (b *InMemoryEventBus) Use(mw ...Middleware) {
	b.mu.Lock()
	b.middleware = append(b.middleware, mw...)
	b.mu.Unlock()
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
		b.log.Debug("subscribed handler", "event_type", eventType)
	})
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(handler, func() { b.catchAll = append(b.catchAll, handler) })
}

func (b *InMemoryEventBus) add(handler shared.EventHandler, register func()) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	register()
	return nil
}

// Publish delivers event to its handlers. It only fails for a nil event or a
// closed bus.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := b.targets(event.EventType())
	if b.async {
		// Counted under the read lock so Close waits for them.
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.log.Debug("no handlers for event", "event_type", event.EventType())
		return nil
	}

	for _, h := range targets {
		if !b.async {
			b.run(event, h)
			continue
		}
		go func(h shared.EventHandler) {
			defer b.inflight.Done()
			_ = b.slots.Acquire(context.Background(), 1)
			defer b.slots.Release(1)
			b.run(event, h)
		}(h)
	}
	return nil
}

// targets must be called with mu held.
func (b *InMemoryEventBus) targets(t shared.EventType) []shared.EventHandler {
	raw := b.byType[t]
	out := make([]shared.EventHandler, 0, len(raw)+len(b.catchAll))
	for _, h := range append(raw[:len(raw):len(raw)], b.catchAll...) {
		out = append(out, chain(h, b.middleware))
	}
	return out
}

func (b *InMemoryEventBus) run(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := b.invoke(event, h)
	took := time.Since(start)

	if b.observer != nil {
		b.observer.ObserveEvent(string(event.EventType()), took, err == nil)
	}
	if err == nil {
		return
	}

	b.log.Error("handler error",
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"duration", took,
		"error", err,
	)
	if b.dlq != nil {
		b.dlq.Add(DeadLetterEntry{Event: event, Error: err.Error(), FailedAt: time.Now().UTC()})
	}
}

// invoke runs h and converts a panic into ErrHandlerPanic.
func (b *InMemoryEventBus) invoke(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic recovered",
				"event_type", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close rejects further events and waits for queued handlers to finish.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	already := b.closed
	b.closed = true
	b.mu.Unlock()

	if already {
		return nil
	}
	b.inflight.Wait()
	b.log.Info("event bus closed")
	return nil
}

// DeadLetters returns the failed-event buffer, or nil when disabled.
func (b *InMemoryEventBus) DeadLetters() *DeadLetterQueue {
	return b.dlq
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
