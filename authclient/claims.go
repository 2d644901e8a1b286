package authclient

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// IDClaims holds the identity token claims the client reads. They are
// decoded without signature checks and only used as hints; the verify
// endpoint remains the authority.
type IDClaims struct {
	Sub       string
	Email     string
	Username  string
	ExpiresAt time.Time
}

// ParseIDClaims decodes rawToken without verifying it.
func ParseIDClaims(rawToken string) (*IDClaims, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedPayload, "parse id token: %v", err)
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedPayload, "error extracting claims")
	}

	c := &IDClaims{}
	c.Sub, _ = claims["sub"].(string)
	c.Email, _ = claims["email"].(string)
	c.Username, _ = claims["cognito:username"].(string)
	if c.Username == "" {
		c.Username, _ = claims["preferred_username"].(string)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
