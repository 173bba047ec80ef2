// Package retry re-runs calls to flaky dependencies with exponential
// backoff. The called function classifies its own errors: Retryable and
// Throttled errors are retried, Permanent errors and plain errors are not.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Kind classifies an error for the retry loop.
type Kind int

const (
	// KindFatal is any error that was not classified.
	KindFatal Kind = iota
	KindRetryable
	KindThrottled
	KindPermanent
)

// Error carries a classification and, for throttling, the wait the server
// asked for.
type Error struct {
	Kind  Kind
	After time.Duration
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func classify(kind Kind, after time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, After: after, Err: err}
}

// Retryable marks err as worth another attempt.
func Retryable(err error) error { return classify(KindRetryable, 0, err) }

// Throttled marks err as retryable after at least the given wait, typically
// from a Retry-After header.
func Throttled(err error, after time.Duration) error { return classify(KindThrottled, after, err) }

// Permanent stops the loop immediately.
func Permanent(err error) error { return classify(KindPermanent, 0, err) }

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// ThrottleWait returns the wait a Throttled error asked for.
func ThrottleWait(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindThrottled {
		return e.After, true
	}
	return 0, false
}

// IsRetryable reports whether err would be retried.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindRetryable || k == KindThrottled
}

// unwrap strips the classification so callers see the original error.
func unwrap(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy describes how often and how long to retry.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads each delay by ±Jitter of its value.
	Jitter float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns 3 attempts starting at 100ms and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the first wait.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.InitialDelay = d
		}
	}
}

// WithMaxDelay caps every wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff factor.
func WithMultiplier(m float64) Option {
	return func(p *Policy) {
		if m >= 1 {
			p.Multiplier = m
		}
	}
}

// WithJitter sets the jitter fraction (0 to 1).
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

// WithOnRetry sets the retry callback.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs functions under a Policy.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier from DefaultPolicy adjusted by opts.
func New(opts ...Option) *Retrier {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p, sleep: sleepCtx}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs fn until it succeeds, returns an unretryable error, the attempts
// run out or ctx ends. Returned errors are stripped of their classification.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unwrap(last)
			}
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !IsRetryable(last) || attempt >= r.policy.MaxAttempts {
			return unwrap(last)
		}

		delay := r.policy.Delay(attempt)
		var e *Error
		if errors.As(last, &e) && e.After > delay {
			delay = e.After
		}
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, unwrap(last), delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return unwrap(last)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn with a Retrier built from opts.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, fn)
}

// DoWithData is Do for functions that return a value.
func DoWithData[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// ReferenceDataRetrier retries the country and city providers with the delay
// doubling after every failure and no jitter.
func ReferenceDataRetrier(maxAttempts int, initialDelay time.Duration, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initialDelay),
		WithMaxDelay(5*time.Minute),
		WithMultiplier(2),
		WithJitter(0),
		WithOnRetry(onRetry),
	)
}

// DatabaseRetrier retries start-up connections while the database comes up.
func DatabaseRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(5),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(2),
		WithOnRetry(onRetry),
	)
}
