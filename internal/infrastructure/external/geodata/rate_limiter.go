package geodata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig shapes the geocoder limiter.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int

	// MinInterval caps the rate at one request per interval and forces a
	// burst of one.
	MinInterval time.Duration

	// WaitTimeout is the longest Allow will block. Zero waits for as long as
	// ctx allows.
	WaitTimeout time.Duration
}

// GeocoderRateLimiterConfig follows the Nominatim usage policy of one
// request per second per application.
func GeocoderRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		MinInterval:       time.Second,
		WaitTimeout:       2 * time.Minute,
	}
}

// RateLimiter paces geocoder calls with a token bucket and honours the
// provider's Retry-After on top of it.
type RateLimiter struct {
	lim     *rate.Limiter
	timeout time.Duration

	mu          sync.Mutex
	pausedUntil time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	limit := rate.Limit(config.RequestsPerSecond)
	if limit <= 0 {
		limit = 1
	}
	burst := max(config.BurstSize, 1)
	if config.MinInterval > 0 {
		limit = min(limit, rate.Every(config.MinInterval))
		burst = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(limit, burst), timeout: config.WaitTimeout}
}

// RateLimitError is returned when the next slot is further away than the
// wait budget.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("geocoder rate limit exceeded, retry after %s", e.RetryAfter)
}

// Allow blocks until a request may go out.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	now := time.Now()

	rl.mu.Lock()
	pause := rl.pausedUntil.Sub(now)
	rl.mu.Unlock()

	from := now.Add(max(pause, 0))
	res := rl.lim.ReserveN(from, 1)
	if !res.OK() {
		return &RateLimitError{RetryAfter: rl.timeout}
	}
	wait := from.Sub(now) + res.DelayFrom(from)
	if rl.timeout > 0 && wait > rl.timeout {
		res.CancelAt(now)
		return &RateLimitError{RetryAfter: wait}
	}
	if wait <= 0 {
		return nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		res.CancelAt(time.Now())
		return ctx.Err()
	}
}

// RecordRateLimitHit holds every request back until retryAfter has passed.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	until := time.Now().Add(retryAfter)
	rl.mu.Lock()
	if until.After(rl.pausedUntil) {
		rl.pausedUntil = until
	}
	rl.mu.Unlock()
}
