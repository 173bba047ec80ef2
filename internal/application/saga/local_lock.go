package saga

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is a process-local Locker used when no shared lock store is
// configured. Leases expire after their ttl like the Redis ones do.
type LocalLocker struct {
	mu     sync.Mutex
	seq    uint64
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]lease), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, held := l.leases[key]; held && now.Before(cur.expires) {
		return nil, false, nil
	}
	l.seq++
	mine := lease{token: l.seq, expires: now.Add(ttl)}
	l.leases[key] = mine

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A lease that expired and was taken over belongs to the new holder.
		if cur, ok := l.leases[key]; ok && cur.token == mine.token {
			delete(l.leases, key)
		}
		return nil
	}
	return unlock, true, nil
}
