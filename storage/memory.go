package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

type memoryWatcher struct {
	tabID string
	fn    func(Event)
}

// MemoryBackend is an in-process store shared by any number of tabs. Nothing
// is written to disk, so all state ends with the process.
type MemoryBackend struct {
	mu       sync.RWMutex
	items    map[string]string
	watchers map[uint64]memoryWatcher
	nextID   uint64
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items:    make(map[string]string),
		watchers: make(map[uint64]memoryWatcher),
	}
}

// Tab opens a new area with a fresh tab ID.
func (b *MemoryBackend) Tab() *MemoryArea {
	return &MemoryArea{backend: b, tabID: uuid.NewString(), watchIDs: make(map[uint64]struct{})}
}

func (b *MemoryBackend) set(origin string, items map[string]string) {
	b.mu.Lock()
	var events []Event
	for k, v := range items {
		if old, ok := b.items[k]; ok && old == v {
			continue
		}
		b.items[k] = v
		events = append(events, Event{Key: k, Origin: origin})
	}
	watchers := b.otherWatchers(origin)
	b.mu.Unlock()

	dispatch(watchers, events)
}

func (b *MemoryBackend) remove(origin string, keys []string) {
	b.mu.Lock()
	var events []Event
	for _, k := range keys {
		if _, ok := b.items[k]; !ok {
			continue
		}
		delete(b.items, k)
		events = append(events, Event{Key: k, Origin: origin, Removed: true})
	}
	watchers := b.otherWatchers(origin)
	b.mu.Unlock()

	dispatch(watchers, events)
}

// otherWatchers must be called with b.mu held.
func (b *MemoryBackend) otherWatchers(origin string) []memoryWatcher {
	var watchers []memoryWatcher
	for _, w := range b.watchers {
		if w.tabID != origin {
			watchers = append(watchers, w)
		}
	}
	return watchers
}

func dispatch(watchers []memoryWatcher, events []Event) {
	if len(events) == 0 {
		return
	}
	for _, w := range watchers {
		go func(w memoryWatcher) {
			for _, ev := range events {
				w.fn(ev)
			}
		}(w)
	}
}

// MemoryArea is one tab's view of a MemoryBackend
type MemoryArea struct {
	backend *MemoryBackend
	tabID   string

	mu       sync.Mutex
	watchIDs map[uint64]struct{}
	closed   bool
}

var _ Area = (*MemoryArea)(nil)

func (a *MemoryArea) TabID() string {
	return a.tabID
}

func (a *MemoryArea) Get(_ context.Context, key string) (string, bool, error) {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()
	v, ok := a.backend.items[key]
	return v, ok, nil
}

func (a *MemoryArea) GetItems(_ context.Context, keys ...string) (map[string]string, error) {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := a.backend.items[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (a *MemoryArea) SetItems(_ context.Context, items map[string]string) error {
	a.backend.set(a.tabID, items)
	return nil
}

func (a *MemoryArea) RemoveItems(_ context.Context, keys ...string) error {
	a.backend.remove(a.tabID, keys)
	return nil
}

func (a *MemoryArea) Watch(_ context.Context, fn func(Event)) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, apperrors.ErrStorageClosed
	}

	b := a.backend
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = memoryWatcher{tabID: a.tabID, fn: fn}
	b.mu.Unlock()
	a.watchIDs[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { a.unwatch(id) })
	}, nil
}

func (a *MemoryArea) unwatch(id uint64) {
	a.mu.Lock()
	delete(a.watchIDs, id)
	a.mu.Unlock()

	a.backend.mu.Lock()
	delete(a.backend.watchers, id)
	a.backend.mu.Unlock()
}

// Close drops every watcher registered through this area. Stored items stay
// in the backend.
func (a *MemoryArea) Close() error {
	a.mu.Lock()
	ids := make([]uint64, 0, len(a.watchIDs))
	for id := range a.watchIDs {
		ids = append(ids, id)
	}
	a.watchIDs = make(map[uint64]struct{})
	a.closed = true
	a.mu.Unlock()

	a.backend.mu.Lock()
	for _, id := range ids {
		delete(a.backend.watchers, id)
	}
	a.backend.mu.Unlock()
	return nil
}
