package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const tracerName = "github.com/jrsteele09/go-auth-session/authclient"

// Client talks to the auth API on behalf of one tab. It is the only component
// that creates token records; Verify may destroy them.
type Client struct {
	authAPIURL string
	store      *tokens.Store
	httpClient *http.Client
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	nowTime    func() time.Time
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the client used for exchange and verify calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMetrics sets the metrics exchange and verify outcomes are counted on.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer sets the tracer for exchange and verify spans.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a Client for the auth API rooted at authAPIURL.
func New(authAPIURL string, store *tokens.Store, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(authAPIURL) == "" {
		return nil, errors.New("[authclient.New] auth API URL is required")
	}
	if store == nil {
		return nil, errors.New("[authclient.New] token store is required")
	}

	c := &Client{
		authAPIURL: strings.TrimRight(authAPIURL, "/"),
		store:      store,
		httpClient: http.DefaultClient,
		tracer:     otel.Tracer(tracerName),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Store returns the token store the client writes to.
func (c *Client) Store() *tokens.Store {
	return c.store
}

// ExchangeURL is the handoff exchange endpoint.
func (c *Client) ExchangeURL() string {
	return c.authAPIURL + ExchangeHandoffPath
}

// VerifyURL is the verification endpoint.
func (c *Client) VerifyURL() string {
	return c.authAPIURL + VerifyPath
}

// ExchangeHandoff trades a one-time handoff code for tokens and saves them.
// Any failure leaves the store untouched and returns false.
func (c *Client) ExchangeHandoff(ctx context.Context, code string) bool {
	ctx, span := c.tracer.Start(ctx, "authclient.ExchangeHandoff")
	defer span.End()

	t, outcome, err := c.exchange(ctx, code)
	c.metrics.ObserveExchange(outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Err(err).Str("outcome", outcome).Msg("Handoff exchange failed")
		return false
	}

	if err := c.store.Save(ctx, t); err != nil {
		span.RecordError(err)
		log.Err(err).Msg("Failed to save exchanged tokens")
		return false
	}
	log.Debug().Int("expires_in", t.ExpiresIn).Msg("Handoff exchanged")
	return true
}

func (c *Client) exchange(ctx context.Context, code string) (tokens.Tokens, string, error) {
	if strings.TrimSpace(code) == "" {
		return tokens.Tokens{}, metrics.OutcomeRejected, apperrors.ErrMissingHandoff
	}

	body, err := json.Marshal(exchangeRequest{Handoff: code})
	if err != nil {
		return tokens.Tokens{}, metrics.OutcomeMalformed, errors.Wrap(err, "[Client.exchange] marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ExchangeURL(), bytes.NewReader(body))
	if err != nil {
		return tokens.Tokens{}, metrics.OutcomeNetwork, errors.Wrap(err, "[Client.exchange] new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tokens.Tokens{}, metrics.OutcomeNetwork, errors.Wrap(err, "[Client.exchange] do")
	}
	defer drain(resp)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !isSuccess(resp.StatusCode) {
		return tokens.Tokens{}, metrics.OutcomeRejected, apperrors.Wrapf(apperrors.ErrHandoffRejected, "status %d", resp.StatusCode)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return tokens.Tokens{}, metrics.OutcomeMalformed, apperrors.Wrapf(apperrors.ErrMalformedPayload, "decode: %v", err)
	}
	if tr.AccessToken == "" || tr.IDToken == "" {
		return tokens.Tokens{}, metrics.OutcomeMalformed, apperrors.Wrapf(apperrors.ErrMalformedPayload, "missing tokens")
	}
	expiresIn, err := c.expiresIn(&tr)
	if err != nil {
		return tokens.Tokens{}, metrics.OutcomeMalformed, err
	}
	return tokens.Tokens{AccessToken: tr.AccessToken, IDToken: tr.IDToken, ExpiresIn: expiresIn}, metrics.OutcomeSuccess, nil
}

// expiresIn falls back to the id token exp claim when the response omits
// expires_in.
func (c *Client) expiresIn(tr *TokenResponse) (int, error) {
	if tr.ExpiresIn > 0 {
		return tr.ExpiresIn, nil
	}
	claims, err := ParseIDClaims(tr.IDToken)
	if err != nil {
		return 0, err
	}
	if claims.ExpiresAt.IsZero() {
		return 0, apperrors.Wrapf(apperrors.ErrMalformedPayload, "no expires_in and no exp claim")
	}
	seconds := int(math.Floor(claims.ExpiresAt.Sub(c.nowTime()).Seconds()))
	if seconds <= 0 {
		return 0, apperrors.Wrapf(apperrors.ErrTokenExpired, "id token exp %s", claims.ExpiresAt)
	}
	return seconds, nil
}

// Verify asks the backend whether the stored identity token is still a live
// session. An HTTP rejection clears the store; a transport failure does not.
func (c *Client) Verify(ctx context.Context) VerifyResult {
	ctx, span := c.tracer.Start(ctx, "authclient.Verify")
	defer span.End()

	header := c.AuthHeader(ctx)
	if len(header) == 0 {
		c.metrics.ObserveVerification(metrics.OutcomeNoToken)
		return VerifyResult{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.VerifyURL(), nil)
	if err != nil {
		log.Err(err).Msg("Failed to build verify request")
		return VerifyResult{}
	}
	req.Header = header

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveVerification(metrics.OutcomeNetwork)
		span.RecordError(err)
		span.SetStatus(codes.Error, metrics.OutcomeNetwork)
		log.Err(err).Msg("Token verification failed")
		return VerifyResult{}
	}
	defer drain(resp)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !isSuccess(resp.StatusCode) {
		c.metrics.ObserveVerification(metrics.OutcomeRejected)
		c.invalidate(ctx, apperrors.Wrapf(apperrors.ErrUnauthorized, "verify status %d", resp.StatusCode))
		return VerifyResult{}
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil || !vr.Valid || vr.User == nil || vr.User.Sub == "" {
		c.metrics.ObserveVerification(metrics.OutcomeMalformed)
		c.invalidate(ctx, apperrors.ErrInvalidUser)
		return VerifyResult{}
	}

	c.metrics.ObserveVerification(metrics.OutcomeSuccess)
	return VerifyResult{Valid: true, User: vr.User}
}

func (c *Client) invalidate(ctx context.Context, reason error) {
	log.Info().Str("reason", reason.Error()).Msg("Session rejected, clearing tokens")
	if err := c.store.Clear(ctx); err != nil {
		log.Err(err).Msg("Failed to clear tokens")
	}
}

// AuthHeader returns the Authorization header to attach to API calls, or an
// empty header when no identity token is stored.
func (c *Client) AuthHeader(ctx context.Context) http.Header {
	h := make(http.Header)
	tok, err := c.TokenContext(ctx)
	if err != nil {
		return h
	}
	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	return h
}

// TokenContext returns the identity token as an OAuth2 bearer token.
func (c *Client) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	idToken, ok := c.store.IDToken(ctx)
	if !ok {
		return nil, apperrors.ErrNoToken
	}
	return &oauth2.Token{AccessToken: idToken, TokenType: "Bearer"}, nil
}

// Token implements oauth2.TokenSource.
func (c *Client) Token() (*oauth2.Token, error) {
	return c.TokenContext(context.Background())
}

var _ oauth2.TokenSource = (*Client)(nil)

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
