package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-session/authclient"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/rs/zerolog/log"
)

// AuthStateUpdater is told when a protected call proves the session dead.
type AuthStateUpdater func(loggedIn bool)

// HeaderSource supplies the auth header for each outbound request.
type HeaderSource interface {
	AuthHeader(ctx context.Context) http.Header
}

// Transport decorates outbound requests with the session credential and
// invalidates the session when a protected endpoint answers 401.
// A 401 never triggers navigation, and a 401 from the verify endpoint is not
// destructive.
type Transport struct {
	base    http.RoundTripper
	headers HeaderSource
	store   *tokens.Store
	metrics *metrics.Metrics
	exempt  func(*http.Request) bool

	mu      sync.RWMutex
	updater AuthStateUpdater
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBase sets the underlying RoundTripper. Defaults to http.DefaultTransport.
func WithBase(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = base
	}
}

// WithMetrics sets the metrics 401 invalidations are counted on.
func WithMetrics(m *metrics.Metrics) TransportOption {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithExemption replaces the check deciding which 401s are not destructive.
func WithExemption(exempt func(*http.Request) bool) TransportOption {
	return func(t *Transport) {
		t.exempt = exempt
	}
}

// NewTransport wraps outbound calls for the session held by client.
func NewTransport(client *authclient.Client, options ...TransportOption) *Transport {
	t := &Transport{
		base:    http.DefaultTransport,
		headers: client,
		store:   client.Store(),
		exempt:  IsVerifyRequest,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// IsVerifyRequest reports whether r targets the verification endpoint.
func IsVerifyRequest(r *http.Request) bool {
	return r.URL != nil && strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), authclient.VerifyPath)
}

// SetAuthStateUpdater registers the callback invoked with false after a
// destructive 401. Passing nil unregisters it.
func (t *Transport) SetAuthStateUpdater(updater AuthStateUpdater) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updater = updater
}

// RoundTrip sends req with the session credential. Redirect hops to a host
// other than the original request's get no credential, and a 401 from such a
// hop leaves the session alone.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	credentialed := sameHost(req, originalRequest(req))
	if credentialed {
		out.Header = t.headers.AuthHeader(req.Context())
	} else {
		out.Header = make(http.Header, len(req.Header))
	}
	for name, values := range req.Header {
		out.Header[name] = append([]string(nil), values...)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && credentialed && !t.exempt(req) {
		t.invalidate(req)
	}
	return resp, nil
}

// originalRequest follows the redirect chain of req back to the first hop.
func originalRequest(req *http.Request) *http.Request {
	first := req
	for first.Response != nil && first.Response.Request != nil {
		first = first.Response.Request
	}
	return first
}

func sameHost(a, b *http.Request) bool {
	if a == b {
		return true
	}
	return a.URL != nil && b.URL != nil && strings.EqualFold(a.URL.Host, b.URL.Host)
}

func (t *Transport) invalidate(req *http.Request) {
	log.Info().Str("url", req.URL.Redacted()).Msg("Protected call returned 401, clearing session")
	t.metrics.IncrementInvalidations()
	if err := t.store.Clear(req.Context()); err != nil {
		log.Err(err).Msg("Failed to clear tokens after 401")
	}

	t.mu.RLock()
	updater := t.updater
	t.mu.RUnlock()
	if updater != nil {
		updater(false)
	}
}
