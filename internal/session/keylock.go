package session

import (
	"context"
	"sync"
)

// keyedLock serializes work per key. Waiters for the same key run one at a
// time in arrival order; different keys proceed fully in parallel. An entry
// is removed from the map once its last waiter releases, so the map never
// grows beyond the set of keys with work in flight.
type keyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem     chan struct{}
	waiters int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the key's lock is held or ctx is done. On success it
// returns a release function; extra calls are no-ops.
func (k *keyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.waiters++
	k.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { k.release(key, entry, true) }) }, nil
}

func (k *keyedLock) release(key string, entry *lockEntry, held bool) {
	if held {
		<-entry.sem
	}
	k.mu.Lock()
	entry.waiters--
	if entry.waiters == 0 && k.entries[key] == entry {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// size returns the number of keys with work in flight.
func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
