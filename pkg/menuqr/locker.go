package menuqr

import (
	"context"
	"fmt"
	"sync"
)

// Locker serializes work on a single account across concurrent webhook deliveries.
// Keys are billing customer ids.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	// The returned unlock function is safe to call more than once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemoryLocker is a keyed mutex for single-process deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// NoopLocker never blocks. Suitable only where a single goroutine touches accounts.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// EventLog records processed billing event ids so duplicate deliveries are acknowledged
// without re-running side effects.
type EventLog interface {
	// Seen reports whether the event id was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the event id.
	MarkProcessed(ctx context.Context, eventID string) error
}
