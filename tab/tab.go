// Package tab assembles the session components of one browser tab and hands
// every consumer in that tab the same session Manager.
package tab

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/authclient"
	"github.com/jrsteele09/go-auth-session/crosstab"
	"github.com/jrsteele09/go-auth-session/gateway"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Settings are the endpoints and limits a tab runs with.
type Settings struct {
	AuthSPAURL  string
	AuthAPIURL  string
	HTTPTimeout time.Duration
	// Registerer receives the session metrics; nil disables them.
	Registerer prometheus.Registerer
}

// SettingsFromConfig reads the tab settings from cfg.
func SettingsFromConfig(cfg config.Config, reg prometheus.Registerer) Settings {
	return Settings{
		AuthSPAURL:  cfg.GetAuthSPAURL(),
		AuthAPIURL:  cfg.GetAuthAPIURL(),
		HTTPTimeout: cfg.GetHTTPTimeout(),
		Registerer:  reg,
	}
}

// Tab owns the components of one tab. The session Manager is created on first
// use and shared from then on.
type Tab struct {
	area        storage.Area
	store       *tokens.Store
	client      *authclient.Client
	transport   *gateway.Transport
	api         *gateway.Client
	flow        *redirect.Flow
	broadcaster *crosstab.Broadcaster
	nowTime     func() time.Time
	base        http.RoundTripper

	once    sync.Once
	manager *session.Manager
	syncer  *crosstab.Sync
	initErr error
}

// Option defines a function type to modify the Tab instance.
type Option func(*Tab)

// WithBaseTransport sets the round tripper under every outbound call.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(t *Tab) {
		t.base = rt
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(t *Tab) {
		t.nowTime = nowFunc
	}
}

// New wires a tab over area, navigating through location.
func New(settings Settings, area storage.Area, location redirect.Location, options ...Option) (*Tab, error) {
	if area == nil {
		return nil, errors.New("[tab.New] storage area is required")
	}

	t := &Tab{
		area:        area,
		broadcaster: crosstab.NewBroadcaster(),
		nowTime:     time.Now,
		base:        http.DefaultTransport,
	}
	for _, opt := range options {
		opt(t)
	}

	var m *metrics.Metrics
	if settings.Registerer != nil {
		m = metrics.New(settings.Registerer)
	}

	t.store = tokens.NewStore(area, tokens.WithNowTime(t.nowTime))

	var err error
	t.client, err = authclient.New(settings.AuthAPIURL, t.store,
		authclient.WithHTTPClient(&http.Client{Transport: t.base, Timeout: settings.HTTPTimeout}),
		authclient.WithMetrics(m),
		authclient.WithNowTime(t.nowTime),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[tab.New] session client")
	}

	t.transport = gateway.NewTransport(t.client, gateway.WithBase(t.base), gateway.WithMetrics(m))
	t.api = gateway.NewClient(t.transport)
	t.api.Timeout = settings.HTTPTimeout

	t.flow, err = redirect.NewFlow(settings.AuthSPAURL, location, t.client)
	if err != nil {
		return nil, errors.Wrap(err, "[tab.New] redirect flow")
	}
	return t, nil
}

// Session returns the tab's Manager, creating it and starting cross-tab sync
// on the first call. The sync outlives ctx and stops on Close.
func (t *Tab) Session(ctx context.Context) (*session.Manager, error) {
	t.once.Do(func() {
		manager := session.NewManager(t.client, t.store, t.flow, session.WithNotifier(t.broadcaster))
		t.transport.SetAuthStateUpdater(manager.UpdateAuthState)

		syncer, err := crosstab.Start(context.WithoutCancel(ctx), t.area, t.broadcaster, manager)
		if err != nil {
			t.initErr = errors.Wrap(err, "[tab.Session] cross-tab sync")
			return
		}
		t.manager = manager
		t.syncer = syncer
		log.Debug().Str("tab", t.area.TabID()).Msg("Session created")
	})
	return t.manager, t.initErr
}

// Mount attaches a consumer to the tab's session.
func (t *Tab) Mount(ctx context.Context) (session.State, error) {
	manager, err := t.Session(ctx)
	if err != nil {
		return session.Anonymous(false), err
	}
	return manager.Mount(ctx), nil
}

// HTTPClient returns the client every protected call should go through.
func (t *Tab) HTTPClient() *gateway.Client {
	return t.api
}

func (t *Tab) Store() *tokens.Store {
	return t.store
}

func (t *Tab) Flow() *redirect.Flow {
	return t.flow
}

// Broadcaster returns the tab's same-tab notification channel.
func (t *Tab) Broadcaster() *crosstab.Broadcaster {
	return t.broadcaster
}

// Close stops cross-tab sync and releases the storage area.
func (t *Tab) Close() error {
	if t.syncer != nil {
		t.syncer.Stop()
	}
	return t.area.Close()
}
