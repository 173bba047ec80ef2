// Package circuitbreaker guards calls to payment gateways and reference-data
// providers. After enough consecutive failures the breaker opens and calls
// fail fast until a cool-down passes; then a limited number of probe calls
// decide whether it closes again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// Settings configures a breaker. Zero fields take the defaults noted below.
type Settings struct {
	Name string

	// FailureThreshold consecutive failures open the breaker. Default 5.
	FailureThreshold int

	// SuccessThreshold consecutive probe successes close it. Default 1.
	SuccessThreshold int

	// CoolDown is how long the breaker stays open. Default 30s.
	CoolDown time.Duration

	// MaxProbes bounds concurrent calls while half-open. Default 1.
	MaxProbes int

	// IsFailure decides which errors count. Nil counts every non-nil error
	// except context cancellation.
	IsFailure func(error) bool

	OnStateChange func(name string, from, to State)

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

func (s *Settings) applyDefaults() {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.CoolDown <= 0 {
		s.CoolDown = 30 * time.Second
	}
	if s.MaxProbes <= 0 {
		s.MaxProbes = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int
	TotalFailures       int
	TotalCalls          int
	OpenedAt            time.Time
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	settings Settings

	mu         sync.Mutex
	state      State
	failures   int
	successes  int
	probes     int
	total      int
	totalFails int
	openedAt   time.Time

	// generation changes on every transition so results of calls started
	// in an earlier state are ignored.
	generation uint64
}

// New creates a closed breaker.
func New(settings Settings) *CircuitBreaker {
	settings.applyDefaults()
	return &CircuitBreaker{settings: settings}
}

// Execute runs fn when the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(gen, err)
	return err
}

// Do is Execute for calls that return a value.
func Do[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.settings.Now().Sub(cb.openedAt) >= cb.settings.CoolDown {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.settings.MaxProbes {
			return 0, ErrTooManyRequests
		}
		cb.probes++
	}
	cb.total++
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}
	if cb.state == StateHalfOpen {
		cb.probes--
	}

	if cb.settings.IsFailure(err) {
		cb.totalFails++
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.settings.FailureThreshold {
			cb.transition(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.settings.Now()
	}
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// elapsed still reports open until the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:                cb.settings.Name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		TotalFailures:       cb.totalFails,
		TotalCalls:          cb.total,
		OpenedAt:            cb.openedAt,
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.settings.Name
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentGatewayBreaker guards one payment gateway. isFailure should ignore
// card declines so that only transport problems trip it.
func PaymentGatewayBreaker(gateway string, isFailure func(error) bool, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:             "payment-" + gateway,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
		MaxProbes:        1,
		IsFailure:        isFailure,
		OnStateChange:    onStateChange,
	})
}

// ReferenceDataBreaker guards the country and city providers.
func ReferenceDataBreaker(name string, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:             name,
		FailureThreshold: 3,
		CoolDown:         2 * time.Minute,
		OnStateChange:    onStateChange,
	})
}
