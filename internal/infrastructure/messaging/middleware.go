package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// Middleware decorates a handler.
type Middleware func(shared.EventHandler) shared.EventHandler

func chain(h shared.EventHandler, mws []Middleware) shared.EventHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// LoggingMiddleware logs every successful handler run at debug level.
// Failures are logged by the bus itself.
func LoggingMiddleware(log *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			if err := next(event); err != nil {
				return err
			}
			log.Debug("handler completed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// DeadLetterEntry is one event whose handler failed.
type DeadLetterEntry struct {
	Event    shared.Event
	Error    string
	FailedAt time.Time
}

// DeadLetterQueue is a fixed-size ring of the most recent failures.
type DeadLetterQueue struct {
	mu    sync.Mutex
	ring  []DeadLetterEntry
	next  int
	count int
	total uint64
}

// NewDeadLetterQueue holds up to size entries; size <= 0 means 100.
func NewDeadLetterQueue(size int) *DeadLetterQueue {
	if size <= 0 {
		size = 100
	}
	return &DeadLetterQueue{ring: make([]DeadLetterEntry, size)}
}

// Add stores entry, overwriting the oldest one when full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ring[q.next] = entry
	q.next = (q.next + 1) % len(q.ring)
	if q.count < len(q.ring) {
		q.count++
	}
	q.total++
}

// Entries returns the stored entries, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, 0, q.count)
	start := (q.next - q.count + len(q.ring)) % len(q.ring)
	for i := 0; i < q.count; i++ {
		out = append(out, q.ring[(start+i)%len(q.ring)])
	}
	return out
}

// Size is the number of stored entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Total counts every failure ever added, including overwritten ones.
func (q *DeadLetterQueue) Total() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
