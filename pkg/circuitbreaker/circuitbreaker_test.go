package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(clock *fakeClock, transitions *[]string) *CircuitBreaker {
	return New(Settings{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		CoolDown:         time.Minute,
		Now:              clock.Now,
		OnStateChange: func(_ string, from, to State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.NoError(t, cb.Execute(ctx, succeed), "a success resets the streak")
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	require.Error(t, cb.Execute(ctx, fail))
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	require.Error(t, cb.Execute(ctx, fail))
	clock.Advance(time.Minute)

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
	assert.Equal(t, clock.now, cb.Snapshot().OpenedAt)
}

func TestCircuitBreaker_ProbeLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	require.Error(t, cb.Execute(ctx, fail))
	clock.Advance(time.Minute)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		// The only probe slot is held by this call.
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrTooManyRequests)
		return nil
	})
	require.NoError(t, err)
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	declined := errors.New("card declined")
	cb := New(Settings{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, declined) },
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return declined }), declined)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateOpen, cb.State(), "custom IsFailure decides alone")
}

func TestCircuitBreaker_DefaultIgnoresCancellation(t *testing.T) {
	cb := New(Settings{FailureThreshold: 1})
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())
}

func TestDo(t *testing.T) {
	cb := New(Settings{Name: "do"})

	got, err := Do(context.Background(), cb, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	snap := cb.Snapshot()
	assert.Equal(t, "do", snap.Name)
	assert.Equal(t, 1, snap.TotalCalls)
	assert.Zero(t, snap.TotalFailures)
}
