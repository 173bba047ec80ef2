package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instant replaces the sleep with a recorder.
func instant(r *Retrier) *[]time.Duration {
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestRetrier_StopsAfterMaxAttempts(t *testing.T) {
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Second), WithJitter(0))
	waits := instant(r)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, KindFatal, KindOf(err), "classification is stripped")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetrier_DoesNotRetryPlainErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("bad request")
	}, WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_PermanentUnwraps(t *testing.T) {
	sentinel := errors.New("gone")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestRetrier_ThrottledWaitsAtLeastRequestedDelay(t *testing.T) {
	var reported []time.Duration
	r := New(
		WithMaxAttempts(2),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			assert.Equal(t, "429", err.Error())
			reported = append(reported, delay)
		}),
	)
	waits := instant(r)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Throttled(errors.New("429"), time.Minute)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Minute}, reported)
	assert.Equal(t, []time.Duration{time.Minute}, *waits)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 40*time.Millisecond, p.Delay(3))
	assert.Equal(t, 50*time.Millisecond, p.Delay(4), "capped")
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, Multiplier: 1, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, Retryable(errors.New("flaky"))
		}
		return 42, nil
	}, WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrier_CancelDuringWaitReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithMaxAttempts(5))
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	boom := errors.New("boom")
	err := r.Do(ctx, func(ctx context.Context) error { return Retryable(boom) })
	assert.Equal(t, boom, err)
}

func TestPresets(t *testing.T) {
	ref := ReferenceDataRetrier(3, time.Minute, nil).Policy()
	assert.Equal(t, 3, ref.MaxAttempts)
	assert.Equal(t, 2*time.Minute, ref.Delay(2))

	db := DatabaseRetrier(nil).Policy()
	assert.Equal(t, 5, db.MaxAttempts)
}
