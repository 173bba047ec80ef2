package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Locker hands out leases with SET NX PX. Each lease carries a random token
// so an expired holder cannot release someone else's lease.
type Locker struct {
	cache *Cache
}

// NewLocker creates a Locker.
func NewLocker(cache *Cache) *Locker {
	return &Locker{cache: cache}
}

// TryLock acquires key for ttl. ok is false when another holder has it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	token := uuid.NewString()
	full := LockKey(key)

	ok, err := l.cache.SetNX(ctx, full, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	unlock := func(ctx context.Context) error {
		_, err := l.cache.DeleteIfEquals(ctx, full, token)
		return err
	}
	return unlock, true, nil
}
