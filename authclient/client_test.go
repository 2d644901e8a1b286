package authclient_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/authclient"
	"github.com/jrsteele09/go-auth-session/authclient/authfake"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testHandoff = "handoff-123"
	testIDToken = "id-token-b"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testFixture struct {
	backend *authfake.Server
	area    *storage.MemoryArea
	store   *tokens.Store
	metrics *metrics.Metrics
	client  *authclient.Client
}

func setupTestFixture(t *testing.T, options ...authclient.ClientOption) *testFixture {
	t.Helper()

	backend := authfake.NewServer()
	t.Cleanup(backend.Close)

	area := storage.NewMemoryBackend().Tab()
	store := tokens.NewStore(area, tokens.WithNowTime(func() time.Time { return testNow }))
	m := metrics.New(nil)

	opts := append([]authclient.ClientOption{
		authclient.WithMetrics(m),
		authclient.WithNowTime(func() time.Time { return testNow }),
	}, options...)
	client, err := authclient.New(backend.URL, store, opts...)
	require.NoError(t, err)

	return &testFixture{backend: backend, area: area, store: store, metrics: m, client: client}
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), tokens.Tokens{AccessToken: "a", IDToken: testIDToken, ExpiresIn: 60}))
}

func TestNew_Validation(t *testing.T) {
	store := tokens.NewStore(storage.NewMemoryBackend().Tab())

	_, err := authclient.New("", store)
	require.Error(t, err)

	_, err = authclient.New("http://localhost:7000", nil)
	require.Error(t, err)

	c, err := authclient.New("http://localhost:7000/", store)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:7000/verify", c.VerifyURL())
	require.Equal(t, "http://localhost:7000/auth/exchange-handoff", c.ExchangeURL())
}

func TestClient_ExchangeHandoff(t *testing.T) {
	ctx := context.Background()

	t.Run("success saves tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: "b", ExpiresIn: 60})

		require.True(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.True(t, f.store.IsLoggedIn(ctx))
		id, ok := f.store.IDToken(ctx)
		require.True(t, ok)
		require.Equal(t, "b", id)

		r, ok := f.store.Snapshot(ctx)
		require.True(t, ok)
		require.Equal(t, testNow.Add(time.Minute).UnixMilli(), r.ExpiresAt.UnixMilli())
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HandoffExchanges.WithLabelValues(metrics.OutcomeSuccess)))
	})

	t.Run("code is single use", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: "b", ExpiresIn: 60})

		require.True(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.NoError(t, f.store.Clear(ctx))
		require.False(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.False(t, f.store.IsLoggedIn(ctx))
	})

	t.Run("401 leaves store empty", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: "b", ExpiresIn: 60})
		f.backend.SetExchangeStatus(http.StatusUnauthorized)

		require.False(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.False(t, f.store.IsLoggedIn(ctx))
		for _, k := range tokens.Keys() {
			_, ok, err := f.area.Get(ctx, k)
			require.NoError(t, err)
			require.False(t, ok)
		}
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HandoffExchanges.WithLabelValues(metrics.OutcomeRejected)))
	})

	t.Run("empty code makes no request", func(t *testing.T) {
		f := setupTestFixture(t)
		require.False(t, f.client.ExchangeHandoff(ctx, "  "))
		require.Equal(t, 0, f.backend.ExchangeCalls())
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", ExpiresIn: 60})

		require.False(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.False(t, f.store.IsLoggedIn(ctx))
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HandoffExchanges.WithLabelValues(metrics.OutcomeMalformed)))
	})

	t.Run("network failure", func(t *testing.T) {
		f := setupTestFixture(t, authclient.WithHTTPClient(&http.Client{Transport: authfake.NetworkDown{}}))
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: "b", ExpiresIn: 60})

		require.False(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.False(t, f.store.IsLoggedIn(ctx))
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HandoffExchanges.WithLabelValues(metrics.OutcomeNetwork)))
	})

	t.Run("expiry falls back to id token exp", func(t *testing.T) {
		f := setupTestFixture(t)
		idToken := authfake.MintIDToken("sub-1", "jane@example.com", testNow.Add(30*time.Minute))
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: idToken})

		require.True(t, f.client.ExchangeHandoff(ctx, testHandoff))
		r, ok := f.store.Snapshot(ctx)
		require.True(t, ok)
		require.Equal(t, testNow.Add(30*time.Minute).UnixMilli(), r.ExpiresAt.UnixMilli())
	})

	t.Run("no expiry anywhere", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: "opaque"})

		require.False(t, f.client.ExchangeHandoff(ctx, testHandoff))
		require.False(t, f.store.IsLoggedIn(ctx))
	})

	t.Run("already expired id token", func(t *testing.T) {
		f := setupTestFixture(t)
		idToken := authfake.MintIDToken("sub-1", "jane@example.com", testNow.Add(-time.Minute))
		f.backend.AddHandoff(testHandoff, authclient.TokenResponse{AccessToken: "a", IDToken: idToken})

		require.False(t, f.client.ExchangeHandoff(ctx, testHandoff))
	})
}

func TestClient_Verify(t *testing.T) {
	ctx := context.Background()
	user := authclient.UserInfo{Sub: "sub-1", Email: utils.Ptr("jane@example.com"), Username: utils.Ptr("jane")}

	t.Run("no id token makes no request", func(t *testing.T) {
		f := setupTestFixture(t)
		res := f.client.Verify(ctx)
		require.False(t, res.Valid)
		require.Nil(t, res.User)
		require.Equal(t, 0, f.backend.VerifyCalls())
	})

	t.Run("valid session returns user", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.backend.AddUser(testIDToken, user)

		res := f.client.Verify(ctx)
		require.True(t, res.Valid)
		require.Equal(t, "sub-1", res.User.Sub)
		require.Equal(t, "jane", res.User.DisplayName())
		require.Equal(t, "Bearer "+testIDToken, f.backend.LastAuthorization())
		require.True(t, f.store.IsLoggedIn(ctx))
	})

	t.Run("401 clears tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		res := f.client.Verify(ctx)
		require.False(t, res.Valid)
		require.False(t, f.store.IsLoggedIn(ctx))
		_, ok := f.store.IDToken(ctx)
		require.False(t, ok)
	})

	t.Run("server error clears tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.backend.AddUser(testIDToken, user)
		f.backend.SetVerifyStatus(http.StatusInternalServerError)

		require.False(t, f.client.Verify(ctx).Valid)
		require.False(t, f.store.IsLoggedIn(ctx))
	})

	t.Run("2xx without user clears tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.backend.AddUser(testIDToken, authclient.UserInfo{})

		require.False(t, f.client.Verify(ctx).Valid)
		require.False(t, f.store.IsLoggedIn(ctx))
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues(metrics.OutcomeMalformed)))
	})

	t.Run("network failure keeps tokens", func(t *testing.T) {
		f := setupTestFixture(t, authclient.WithHTTPClient(&http.Client{Transport: authfake.NetworkDown{}}))
		f.login(t)

		require.False(t, f.client.Verify(ctx).Valid)
		require.True(t, f.store.IsLoggedIn(ctx))
		id, ok := f.store.IDToken(ctx)
		require.True(t, ok)
		require.Equal(t, testIDToken, id)
	})
}

func TestClient_AuthHeader(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.Empty(t, f.client.AuthHeader(ctx))
	_, err := f.client.Token()
	require.Error(t, err)

	f.login(t)
	require.Equal(t, "Bearer "+testIDToken, f.client.AuthHeader(ctx).Get("Authorization"))

	tok, err := oauth2.ReuseTokenSource(nil, f.client).Token()
	require.NoError(t, err)
	require.Equal(t, testIDToken, tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
}

func TestParseIDClaims(t *testing.T) {
	exp := testNow.Add(time.Hour)
	claims, err := authclient.ParseIDClaims(authfake.MintIDToken("sub-9", "x@example.com", exp))
	require.NoError(t, err)
	require.Equal(t, "sub-9", claims.Sub)
	require.Equal(t, "x@example.com", claims.Email)
	require.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())

	_, err = authclient.ParseIDClaims("not-a-jwt")
	require.Error(t, err)
}

func TestUserInfo_DisplayName(t *testing.T) {
	var nilUser *authclient.UserInfo
	require.Equal(t, "", nilUser.DisplayName())
	require.Equal(t, "a@b.c", (&authclient.UserInfo{Sub: "s", Email: utils.Ptr("a@b.c")}).DisplayName())
	require.Equal(t, "", (&authclient.UserInfo{Sub: "s", Username: utils.Ptr("")}).DisplayName())
}
