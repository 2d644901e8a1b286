package crosstab

import "sync"

// Broadcaster is the same-tab notification channel. Storage events never
// reach the tab that wrote them, so a tab that changes the session itself
// announces it here.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[uint64]func()
	next      uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[uint64]func())}
}

// Notify calls every listener in the caller's goroutine.
func (b *Broadcaster) Notify() {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Listen registers fn until the returned func is called.
func (b *Broadcaster) Listen(fn func()) (unlisten func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}
