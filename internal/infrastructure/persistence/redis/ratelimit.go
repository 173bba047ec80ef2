package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PrefixRateLimit namespaces the request counters.
const PrefixRateLimit = "ratelimit:"

// RateLimiter counts requests per key in fixed windows shared by every API
// replica. A window's counter expires with the window.
type RateLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key in each window.
func NewRateLimiter(cache *Cache, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{cache: cache, limit: int64(limit), window: window, now: time.Now}
}

// Allow increments key's counter for the current window and reports whether
// it is still within the limit.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	full := PrefixRateLimit + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.cache.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, full)
		p.PExpire(ctx, full, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}
