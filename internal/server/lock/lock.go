// Package lock serializes work per user. Locks are named by a key, usually
// the user id. TryLock fails at once with common.ErrorConflict when the key
// is held; Lock waits for it.
package lock

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/accountctx/internal/common"
)

// Unlock releases a held lock. Calling it more than once is safe.
type Unlock func()

type Locker interface {
	// TryLock acquires the lock on key or returns common.ErrorConflict.
	TryLock(ctx context.Context, key string) (Unlock, error)
	// Lock waits for the lock on key until ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

type semaphore struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker backed by one single-slot channel per key.
// Idle keys hold no memory.
type Local struct {
	mu   sync.Mutex
	sems map[string]*semaphore
}

func NewLocal() *Local {
	return &Local{sems: map[string]*semaphore{}}
}

func (l *Local) ref(key string) *semaphore {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sems[key]
	if !ok {
		s = &semaphore{ch: make(chan struct{}, 1)}
		l.sems[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *semaphore) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.sems, key)
	}
}

func (l *Local) release(key string, s *semaphore) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}
}

func (l *Local) TryLock(ctx context.Context, key string) (Unlock, error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return l.release(key, s), nil
	default:
		l.unref(key, s)
		return nil, common.ErrorConflict
	}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return l.release(key, s), nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}
