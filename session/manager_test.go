package session_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-session/authclient"
	"github.com/jrsteele09/go-auth-session/authclient/authfake"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/stretchr/testify/require"
)

const (
	testIDToken = "id-token"
	startURL    = "https://talent.example.com/console"
)

var testUser = authclient.UserInfo{Sub: "sub-1", Email: utils.Ptr("jane@example.com"), Username: utils.Ptr("jane")}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type testFixture struct {
	backend  *authfake.Server
	store    *tokens.Store
	location *redirect.MemoryLocation
	notifier *countingNotifier
	manager  *session.Manager
}

func setupTestFixture(t *testing.T, href string) *testFixture {
	t.Helper()

	backend := authfake.NewServer()
	t.Cleanup(backend.Close)
	backend.AddUser(testIDToken, testUser)

	store := tokens.NewStore(storage.NewMemoryBackend().Tab())
	client, err := authclient.New(backend.URL, store)
	require.NoError(t, err)

	location, err := redirect.NewMemoryLocation(href)
	require.NoError(t, err)
	flow, err := redirect.NewFlow("https://auth.example.com", location, client)
	require.NoError(t, err)

	notifier := &countingNotifier{}
	return &testFixture{
		backend:  backend,
		store:    store,
		location: location,
		notifier: notifier,
		manager:  session.NewManager(client, store, flow, session.WithNotifier(notifier)),
	}
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), tokens.Tokens{AccessToken: "a", IDToken: testIDToken, ExpiresIn: 600}))
}

func requireAnonymous(t *testing.T, s session.State) {
	t.Helper()
	require.False(t, s.IsLoggedIn)
	require.Nil(t, s.User)
	require.Equal(t, session.DefaultDisplayName, s.DisplayName)
	require.False(t, s.Loading)
}

func TestManager_InitialState(t *testing.T) {
	f := setupTestFixture(t, startURL)
	s := f.manager.Snapshot()
	require.True(t, s.Loading)
	require.False(t, s.IsLoggedIn)
	require.Nil(t, s.User)
}

func TestManager_CheckAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("valid session", func(t *testing.T) {
		f := setupTestFixture(t, startURL)
		f.login(t)

		s := f.manager.CheckAuth(ctx)
		require.True(t, s.IsLoggedIn)
		require.False(t, s.Loading)
		require.Equal(t, "jane", s.DisplayName)
		require.Equal(t, "sub-1", s.User.Sub)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := setupTestFixture(t, startURL)
		f.login(t)

		first := f.manager.CheckAuth(ctx)
		second := f.manager.CheckAuth(ctx)
		require.Equal(t, first, second)
		require.Equal(t, 2, f.backend.VerifyCalls())
	})

	t.Run("rejected session", func(t *testing.T) {
		f := setupTestFixture(t, startURL)
		f.login(t)
		f.backend.RemoveUser(testIDToken)

		requireAnonymous(t, f.manager.CheckAuth(ctx))
		require.False(t, f.store.IsLoggedIn(ctx))
	})

	t.Run("no token", func(t *testing.T) {
		f := setupTestFixture(t, startURL)
		requireAnonymous(t, f.manager.CheckAuth(ctx))
		require.Equal(t, 0, f.backend.VerifyCalls())
	})
}

func TestManager_SubscribersSeeLoading(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, startURL)
	f.login(t)

	var seen []session.State
	unsubscribe := f.manager.Subscribe(func(s session.State) { seen = append(seen, s) })
	f.manager.CheckAuth(ctx)
	unsubscribe()
	f.manager.CheckAuth(ctx)

	require.Len(t, seen, 2)
	require.True(t, seen[0].Loading)
	require.True(t, seen[1].IsLoggedIn)
	require.False(t, seen[1].Loading)

	// Snapshots are copies.
	seen[1].User.Sub = "tampered"
	require.Equal(t, "sub-1", f.manager.Snapshot().User.Sub)
}

func TestManager_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("handoff success", func(t *testing.T) {
		f := setupTestFixture(t, startURL+"?handoff=XYZ&foo=bar#frag")
		f.backend.AddHandoff("XYZ", authclient.TokenResponse{AccessToken: "a", IDToken: testIDToken, ExpiresIn: 60})

		s := f.manager.Init(ctx)
		require.True(t, s.IsLoggedIn)
		require.False(t, s.Loading)
		require.Equal(t, startURL+"?foo=bar#frag", f.location.Href().String())
		require.Equal(t, 1, f.notifier.Count())
	})

	t.Run("handoff failure", func(t *testing.T) {
		f := setupTestFixture(t, startURL+"?handoff=XYZ&foo=bar#frag")
		f.backend.SetExchangeStatus(http.StatusBadRequest)

		requireAnonymous(t, f.manager.Init(ctx))
		require.Equal(t, startURL+"?foo=bar#frag", f.location.Href().String())
		require.Equal(t, 0, f.notifier.Count())
		require.Equal(t, 0, f.backend.VerifyCalls())
	})

	t.Run("existing token", func(t *testing.T) {
		f := setupTestFixture(t, startURL)
		f.login(t)

		require.True(t, f.manager.Init(ctx).IsLoggedIn)
		require.Equal(t, 0, f.backend.ExchangeCalls())
		require.Empty(t, f.location.History())
	})
}

func TestManager_Mount(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, startURL)
	f.login(t)

	require.True(t, f.manager.Mount(ctx).IsLoggedIn)
	require.Equal(t, 1, f.backend.VerifyCalls())

	// A consistent second consumer attaches without a network call.
	require.True(t, f.manager.Mount(ctx).IsLoggedIn)
	require.Equal(t, 1, f.backend.VerifyCalls())

	// Tokens vanished behind the manager's back: the next consumer reconciles.
	require.NoError(t, f.store.Clear(ctx))
	requireAnonymous(t, f.manager.Mount(ctx))
	require.Equal(t, 1, f.backend.VerifyCalls())
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, startURL)
	f.login(t)
	f.manager.CheckAuth(ctx)

	var atNavigation session.State
	f.location.OnAssign(func(_ *url.URL) { atNavigation = f.manager.Snapshot() })

	f.manager.Logout(ctx)

	requireAnonymous(t, atNavigation)
	requireAnonymous(t, f.manager.Snapshot())
	require.False(t, f.store.IsLoggedIn(ctx))
	require.Equal(t, "/logout", f.location.Href().Path)
}

func TestManager_Login(t *testing.T) {
	f := setupTestFixture(t, startURL)
	f.manager.Login("")
	require.Equal(t, startURL, f.location.Href().Query().Get("return"))
}

func TestManager_UpdateAuthState(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, startURL)
	f.login(t)
	f.manager.CheckAuth(ctx)

	f.manager.UpdateAuthState(true)
	require.True(t, f.manager.Snapshot().IsLoggedIn)

	f.manager.UpdateAuthState(false)
	requireAnonymous(t, f.manager.Snapshot())
}

func TestManager_Reconcile(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, startURL)

	requireAnonymous(t, f.manager.Reconcile(ctx))
	require.Equal(t, 0, f.backend.VerifyCalls())

	f.login(t)
	require.True(t, f.manager.Reconcile(ctx).IsLoggedIn)
	require.Equal(t, 1, f.backend.VerifyCalls())
}

func TestAuthenticated_DisplayNameFallback(t *testing.T) {
	require.Equal(t, "jane@example.com", session.Authenticated(authclient.UserInfo{Sub: "s", Email: utils.Ptr("jane@example.com")}).DisplayName)
	require.Equal(t, session.DefaultDisplayName, session.Authenticated(authclient.UserInfo{Sub: "s"}).DisplayName)
}
