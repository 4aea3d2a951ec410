// Package lease provides per-key mutual exclusion.
//
// A Lease is non-blocking: TryAcquire either takes the key or reports
// sentinel.ErrLeaseHeld so the caller can surface a retryable signal.
// KeyedMutex is blocking and serializes work per key within one process.
package lease

import (
	"context"
	"sync"
	"time"

	"parity/pkg/platform/sentinel"
)

// Lease grants exclusive, time-bounded ownership of a key.
type Lease interface {
	// TryAcquire takes key for at most ttl. The returned release func must be
	// called exactly once. Returns sentinel.ErrLeaseHeld when another holder
	// owns the key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Lease. The ttl is not enforced because a local holder
// always releases through its deferred release func.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, sentinel.ErrLeaseHeld
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// KeyedMutex serializes callers per key. Entries are reference counted and
// dropped once no caller holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
