package redirect

import (
	"net/url"
	"sync"
)

// Location is the tab's address bar.
type Location interface {
	// Href returns a copy of the current URL.
	Href() *url.URL
	// Assign navigates the tab to u, like setting window.location.href.
	Assign(u *url.URL)
	// ReplaceState rewrites the current URL without navigating.
	ReplaceState(u *url.URL)
}

// NavigationKind tells a full navigation from an in-place URL rewrite.
type NavigationKind string

const (
	NavigationAssign  NavigationKind = "assign"
	NavigationReplace NavigationKind = "replace"
)

// Navigation is one recorded change of a MemoryLocation.
type Navigation struct {
	Kind NavigationKind
	URL  *url.URL
}

// MemoryLocation is a Location that records every change. Hosts without a
// real browser print or open the assigned URLs themselves.
type MemoryLocation struct {
	mu       sync.RWMutex
	current  *url.URL
	history  []Navigation
	onAssign func(*url.URL)
}

var _ Location = (*MemoryLocation)(nil)

// NewMemoryLocation starts at rawURL.
func NewMemoryLocation(rawURL string) (*MemoryLocation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &MemoryLocation{current: u}, nil
}

// OnAssign registers fn to run after each navigation.
func (l *MemoryLocation) OnAssign(fn func(*url.URL)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAssign = fn
}

func (l *MemoryLocation) Href() *url.URL {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneURL(l.current)
}

func (l *MemoryLocation) Assign(u *url.URL) {
	l.mu.Lock()
	l.current = cloneURL(u)
	l.history = append(l.history, Navigation{Kind: NavigationAssign, URL: cloneURL(u)})
	fn := l.onAssign
	l.mu.Unlock()
	if fn != nil {
		fn(cloneURL(u))
	}
}

func (l *MemoryLocation) ReplaceState(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = cloneURL(u)
	l.history = append(l.history, Navigation{Kind: NavigationReplace, URL: cloneURL(u)})
}

// History returns every navigation in order.
func (l *MemoryLocation) History() []Navigation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Navigation(nil), l.history...)
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
