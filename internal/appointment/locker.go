package appointment

import (
	"context"
	"sync"
)

// Locker runs fn while holding an exclusive lock on name.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

func (l *LocalLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	k, ok := l.locks[name]
	if !ok {
		k = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[name] = k
	}
	k.refs++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-k.ch }()

	return fn(ctx)
}
