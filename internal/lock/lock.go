// ABOUTME: Per-key locks that serialize ingestion writes for one user.
// ABOUTME: Local covers one process; Valkey covers several processes sharing a database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockTimeout is returned when the context ends before the lock is acquired.
var ErrLockTimeout = errors.New("lock timeout")

// Locker hands out exclusive locks by key.
type Locker interface {
	// Lock blocks until key is held or ctx ends. The returned func releases
	// the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process Locker with one single-slot channel per key.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock acquires key, waiting until ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w: %w", key, ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
