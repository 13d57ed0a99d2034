package memstore

import (
	"context"
	"sync"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// Locker is a process-local stand-in for the Redis booking lock, used with
// the memory storage driver. Like the Redis lock it never waits: a held key
// fails fast with redisclient.ErrLockNotAcquired.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, busy := l.held[key]; busy {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
