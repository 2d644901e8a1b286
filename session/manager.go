package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/authclient"
	"github.com/rs/zerolog/log"
)

// Verifier confirms the stored credential with the backend.
type Verifier interface {
	Verify(ctx context.Context) authclient.VerifyResult
}

// TokenChecker reports whether a usable token is stored.
type TokenChecker interface {
	IsLoggedIn(ctx context.Context) bool
}

// Redirector drives the login/logout protocol with the identity SPA.
type Redirector interface {
	Login(returnURL string)
	Logout(ctx context.Context)
	CompleteHandoff(ctx context.Context) (attempted, ok bool)
}

// Notifier announces an in-tab session change to the tab's other listeners.
type Notifier interface {
	Notify()
}

// Manager owns the single session State of a tab. Every write replaces the
// whole record, so concurrent checks resolve last-writer-wins.
type Manager struct {
	verifier Verifier
	tokens   TokenChecker
	flow     Redirector
	notifier Notifier

	mu      sync.RWMutex
	state   State
	subs    map[uint64]func(State)
	nextSub uint64
	mounted bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier sets the same-tab channel told after a completed handoff.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// NewManager creates a manager in the initial loading, logged out state.
func NewManager(verifier Verifier, tokens TokenChecker, flow Redirector, options ...ManagerOption) *Manager {
	m := &Manager{
		verifier: verifier,
		tokens:   tokens,
		flow:     flow,
		state:    Anonymous(true),
		subs:     make(map[uint64]func(State)),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe calls fn with every new state until the returned func is called.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) setState(s State) State {
	m.mu.Lock()
	m.state = s
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s.clone())
	}
	return s.clone()
}

// CheckAuth verifies the stored credential and replaces the state with the
// result.
func (m *Manager) CheckAuth(ctx context.Context) State {
	loading := m.Snapshot()
	loading.Loading = true
	m.setState(loading)

	res := m.verifier.Verify(ctx)
	if res.Valid && res.User != nil {
		return m.setState(Authenticated(*res.User))
	}
	return m.setState(Anonymous(false))
}

// Login hands the tab to the identity SPA.
func (m *Manager) Login(returnURL string) {
	m.flow.Login(returnURL)
}

// Logout shows the logged out state at once, then leaves for the identity
// SPA logout page.
func (m *Manager) Logout(ctx context.Context) {
	m.setState(Anonymous(false))
	m.flow.Logout(ctx)
}

// UpdateAuthState is the gateway's updater. false drops the session; true
// is ignored since a logged in state needs a verified user, which only
// Reconcile can produce.
func (m *Manager) UpdateAuthState(loggedIn bool) {
	if loggedIn {
		return
	}
	log.Debug().Msg("Session invalidated by a protected call")
	m.setState(Anonymous(false))
}

// Reconcile brings the state in line with the token store: a stored token is
// re-verified, a missing one forces the logged out state.
func (m *Manager) Reconcile(ctx context.Context) State {
	if m.tokens.IsLoggedIn(ctx) {
		return m.CheckAuth(ctx)
	}
	return m.setState(Anonymous(false))
}

// Init is the mount sequence: a pending handoff is exchanged and removed
// from the URL before anything else looks at the token store.
func (m *Manager) Init(ctx context.Context) State {
	attempted, ok := m.flow.CompleteHandoff(ctx)
	if !attempted {
		return m.CheckAuth(ctx)
	}
	if !ok {
		return m.setState(Anonymous(false))
	}

	s := m.CheckAuth(ctx)
	if m.notifier != nil {
		m.notifier.Notify()
	}
	return s
}

// Mount attaches a consumer. The first consumer runs Init; later ones only
// reconcile when the shared flag disagrees with the token store.
func (m *Manager) Mount(ctx context.Context) State {
	m.mu.Lock()
	first := !m.mounted
	m.mounted = true
	m.mu.Unlock()

	if first {
		return m.Init(ctx)
	}

	s := m.Snapshot()
	if s.Loading || s.IsLoggedIn == m.tokens.IsLoggedIn(ctx) {
		return s
	}
	return m.Reconcile(ctx)
}
