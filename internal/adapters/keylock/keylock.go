package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"golang.org/x/sync/semaphore"
)

type keyEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker is a keyed mutex. Waiters on the same key are served in arrival
// order and give up after the configured timeout.
type Locker struct {
	mu      sync.Mutex
	keys    map[string]*keyEntry
	timeout time.Duration
}

// New creates a Locker. A non-positive timeout waits until ctx is done.
func New(timeout time.Duration) *Locker {
	return &Locker{
		keys:    make(map[string]*keyEntry),
		timeout: timeout,
	}
}

// Lock blocks until key is held by the caller and returns its release func.
// It fails with LOCK_TIMEOUT when the wait exceeds the timeout.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireEntry(key)

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		l.releaseEntry(key)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindLockTimeout, "timed out waiting for key lock", err, map[string]any{
				"key":     key,
				"timeout": l.timeout.String(),
			})
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.releaseEntry(key)
		})
	}, nil
}

// Held reports the number of keys currently locked or waited on
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func (l *Locker) acquireEntry(key string) *keyEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &keyEntry{sem: semaphore.NewWeighted(1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) releaseEntry(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}
