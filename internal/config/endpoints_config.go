package config

import (
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// Service names a product API in the suite.
type Service string

const (
	ServiceCredits  Service = "credits"
	ServiceTalent   Service = "talent"
	ServiceAccounts Service = "accounts"
	ServicePatent   Service = "patent"
)

const (
	devAuthSPAURL = "http://localhost:5175"
	devAuthAPIURL = "http://localhost:7000"
)

type EndpointsConfig interface {
	GetAuthSPAURL() string
	GetAuthAPIURL() string
	GetServiceAPIURL(service Service) (string, bool)
}

// Endpoints holds every URL of the suite. All of them derive from one base
// domain unless the auth URLs are given explicitly.
type Endpoints struct {
	authSPAURL string
	authAPIURL string
	services   map[Service]string
}

var _ EndpointsConfig = Endpoints{}

func newEndpoints(environment, baseDomain, authSPAURL, authAPIURL string) (Endpoints, error) {
	baseDomain = strings.Trim(strings.TrimSpace(baseDomain), ".")
	e := Endpoints{services: make(map[Service]string)}

	if baseDomain != "" {
		e.authSPAURL = fmt.Sprintf("https://auth.%s", baseDomain)
		e.authAPIURL = fmt.Sprintf("https://login.api.%s", baseDomain)
		for _, s := range []Service{ServiceCredits, ServiceTalent, ServiceAccounts, ServicePatent} {
			e.services[s] = fmt.Sprintf("https://%s.api.%s", s, baseDomain)
		}
	} else if environment == "DEV" || environment == "" {
		e.authSPAURL = devAuthSPAURL
		e.authAPIURL = devAuthAPIURL
	}

	if authSPAURL != "" {
		e.authSPAURL = strings.TrimRight(authSPAURL, "/")
	}
	if authAPIURL != "" {
		e.authAPIURL = strings.TrimRight(authAPIURL, "/")
	}

	if e.authSPAURL == "" || e.authAPIURL == "" {
		return Endpoints{}, apperrors.Wrapf(apperrors.ErrMissingBaseDomain, "[config] set AUTHSESSION_BASE_DOMAIN")
	}
	return e, nil
}

func (e Endpoints) GetAuthSPAURL() string {
	return e.authSPAURL
}

func (e Endpoints) GetAuthAPIURL() string {
	return e.authAPIURL
}

func (e Endpoints) GetServiceAPIURL(service Service) (string, bool) {
	u, ok := e.services[service]
	return u, ok
}
