package webchat

import (
	"context"
	"sync"
)

// turnLocks serializes widget turns per conversation key, the same key the
// queue worker shards on. Entries are dropped when no turn holds or waits
// on them.
type turnLocks struct {
	mu    sync.Mutex
	slots map[string]*turnSlot
}

type turnSlot struct {
	ch   chan struct{}
	refs int
}

func newTurnLocks() *turnLocks {
	return &turnLocks{slots: make(map[string]*turnSlot)}
}

// acquire blocks until key is free or ctx is done. The returned func
// releases the key.
func (l *turnLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &turnSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			l.release(key, slot)
		}, nil
	case <-ctx.Done():
		l.release(key, slot)
		return nil, ctx.Err()
	}
}

func (l *turnLocks) release(key string, slot *turnSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *turnLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
