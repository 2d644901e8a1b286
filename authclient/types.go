package authclient

import "github.com/jrsteele09/go-auth-session/internal/utils"

// Endpoint paths on the auth API.
const (
	ExchangeHandoffPath = "/auth/exchange-handoff"
	VerifyPath          = "/verify"
)

// UserInfo is the profile returned by the verify endpoint.
type UserInfo struct {
	Sub      string  `json:"sub"`
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

// DisplayName picks the friendliest available name, or "" when the profile
// has neither a username nor an email.
func (u *UserInfo) DisplayName() string {
	if u == nil {
		return ""
	}
	return utils.FirstNonEmpty(u.Username, u.Email)
}

// VerifyResult is the outcome of Verify. User is set only when Valid.
type VerifyResult struct {
	Valid bool
	User  *UserInfo
}

type exchangeRequest struct {
	Handoff string `json:"handoff"`
}

// TokenResponse is the body returned by the handoff exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

type verifyResponse struct {
	Valid bool      `json:"valid"`
	User  *UserInfo `json:"user,omitempty"`
}
