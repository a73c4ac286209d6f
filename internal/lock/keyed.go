// Package lock serializes certificate-number allocation per security
// system. The counter lives on the CRM System record and is bumped with
// a read-increment-write pair, so two concurrent requests for the same
// system must not interleave.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a key. Acquire blocks until the key
// is free or ctx is done; the returned release function must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex is the in-process Locker for single-replica deployments.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() { k.release(key, e) }, nil
	case <-ctx.Done():
		// The goroutine still holds or will hold the mutex; hand it
		// straight back so the entry can be reclaimed.
		go func() {
			<-acquired
			k.release(key, e)
		}()
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(key string, e *entry) {
	e.mu.Unlock()
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
