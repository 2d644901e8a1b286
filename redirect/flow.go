package redirect

import (
	"context"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-session/authclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HandoffParam is the query parameter carrying the one-time handoff code.
const HandoffParam = "handoff"

// Flow hands the tab to the identity SPA and takes it back via a handoff
// code. Navigation always happens in the current tab.
type Flow struct {
	authSPAURL *url.URL
	location   Location
	client     *authclient.Client
}

// NewFlow creates a redirect flow against the identity SPA at authSPAURL.
func NewFlow(authSPAURL string, location Location, client *authclient.Client) (*Flow, error) {
	u, err := url.Parse(strings.TrimRight(authSPAURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[redirect.NewFlow] auth SPA URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[redirect.NewFlow] auth SPA URL %q must be absolute", authSPAURL)
	}
	if location == nil {
		return nil, errors.New("[redirect.NewFlow] location is required")
	}
	if client == nil {
		return nil, errors.New("[redirect.NewFlow] client is required")
	}
	return &Flow{authSPAURL: u, location: location, client: client}, nil
}

// Location returns the tab location the flow navigates.
func (f *Flow) Location() Location {
	return f.location
}

// LoginURL builds the identity SPA login address returning to returnURL.
func (f *Flow) LoginURL(returnURL string) *url.URL {
	u := f.spaURL("/login")
	u.RawQuery = "return=" + url.QueryEscape(returnURL)
	return u
}

// LogoutURL builds the identity SPA logout address returning to origin.
func (f *Flow) LogoutURL(origin string) *url.URL {
	u := f.spaURL("/logout")
	u.RawQuery = "logout_uri=" + url.QueryEscape(origin)
	return u
}

// Login sends the tab to the identity SPA. An empty returnURL means the
// current page.
func (f *Flow) Login(returnURL string) {
	if returnURL == "" {
		returnURL = f.location.Href().String()
	}
	f.location.Assign(f.LoginURL(returnURL))
}

// Logout clears the tokens, then sends the tab to the identity SPA logout.
func (f *Flow) Logout(ctx context.Context) {
	if err := f.client.Store().Clear(ctx); err != nil {
		log.Err(err).Msg("Logout: failed to clear tokens")
	}
	f.location.Assign(f.LogoutURL(Origin(f.location.Href())))
}

// PendingHandoff returns the handoff code in the current URL, if any.
func (f *Flow) PendingHandoff() (string, bool) {
	code := f.location.Href().Query().Get(HandoffParam)
	return code, code != ""
}

// CompleteHandoff exchanges a handoff code found in the current URL. The
// parameter is stripped whether or not the exchange succeeds, so a reload
// can never replay it.
func (f *Flow) CompleteHandoff(ctx context.Context) (attempted, ok bool) {
	code, found := f.PendingHandoff()
	if !found {
		return false, false
	}
	ok = f.client.ExchangeHandoff(ctx, code)
	f.location.ReplaceState(StripHandoff(f.location.Href()))
	return true, ok
}

func (f *Flow) spaURL(path string) *url.URL {
	u := cloneURL(f.authSPAURL)
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""
	return u
}

// StripHandoff removes every handoff parameter from u, keeping the order
// and encoding of the remaining parameters and the fragment.
func StripHandoff(u *url.URL) *url.URL {
	out := cloneURL(u)
	if out.RawQuery == "" {
		return out
	}
	parts := strings.Split(out.RawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == HandoffParam {
			continue
		}
		kept = append(kept, p)
	}
	out.RawQuery = strings.Join(kept, "&")
	out.ForceQuery = false
	return out
}

// Origin returns scheme://host of u.
func Origin(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
