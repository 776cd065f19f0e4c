package memory

import (
	"context"
	"sync"
)

// SlotLocker serializes writes to the same (userID, slot). Acquiring with an
// empty slot is always a no-op: unslotted writes have no ordering guarantee.
// The returned release function must be called on every exit path.
type SlotLocker interface {
	Acquire(ctx context.Context, userID, slot string) (release func(), err error)
}

// slotLock is one keyed lock with a waiter count so idle entries can be
// reclaimed from the map.
type slotLock struct {
	ch      chan struct{} // capacity 1, holding the token means holding the lock
	waiters int
}

// KeyedSlotLocker is the in-process SlotLocker: a map of per-key channel
// locks. Lock acquisition respects context cancellation so an abandoned
// write never parks a goroutine forever.
type KeyedSlotLocker struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

// NewKeyedSlotLocker creates an in-process slot locker.
func NewKeyedSlotLocker() *KeyedSlotLocker {
	return &KeyedSlotLocker{locks: make(map[string]*slotLock)}
}

// Acquire blocks until the (userID, slot) lock is held or ctx is done.
func (l *KeyedSlotLocker) Acquire(ctx context.Context, userID, slot string) (func(), error) {
	if slot == "" {
		return func() {}, nil
	}

	key := userID + "\x00" + slot

	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &slotLock{ch: make(chan struct{}, 1)}
		l.locks[key] = sl
	}
	sl.waiters++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-sl.ch
				l.put(key, sl)
			})
		}
		return release, nil
	case <-ctx.Done():
		l.put(key, sl)
		return nil, ctx.Err()
	}
}

func (l *KeyedSlotLocker) put(key string, sl *slotLock) {
	l.mu.Lock()
	sl.waiters--
	if sl.waiters == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
