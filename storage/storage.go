// Package storage provides the key/value persistence that token state lives
// in, together with the change notifications tabs use to observe each other.
//
// An Area is one tab's handle on a shared backend. Writes are visible to every
// tab immediately; change events are delivered asynchronously and only to tabs
// other than the writer, mirroring the browser storage event.
package storage

import "context"

// Event describes a change to one key made by another tab.
type Event struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`  // TabID of the writer
	Removed bool   `json:"removed"` // true when the key was deleted
}

// Area is a tab-scoped view of the shared key/value store.
type Area interface {
	// TabID identifies the tab owning this area.
	TabID() string

	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// GetItems reads keys in one step, so the result never mixes two writes.
	// Missing keys are left out of the map.
	GetItems(ctx context.Context, keys ...string) (map[string]string, error)

	// SetItems writes every item in one step: no reader observes a subset.
	SetItems(ctx context.Context, items map[string]string) error

	// RemoveItems deletes the keys in one step. Missing keys are ignored.
	RemoveItems(ctx context.Context, keys ...string) error

	// Watch registers fn for change events written by other tabs.
	Watch(ctx context.Context, fn func(Event)) (stop func(), err error)

	// Close releases the watchers held by this area.
	Close() error
}
