package apiclient

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenCookie holds the backend's JWT access token.
const AccessTokenCookie = "access_token_cookie"

// ErrNoToken is returned when no access token cookie is present.
var ErrNoToken = errors.New("no access token")

// TokenInfo is what can be read from an access token without its key.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// InspectToken decodes the access token cookie from cookies. The signature is
// not checked; the result is informational only.
func InspectToken(cookies []*http.Cookie) (*TokenInfo, error) {
	var raw string
	for _, c := range cookies {
		if c.Name == AccessTokenCookie && c.Value != "" {
			raw = c.Value
			break
		}
	}
	if raw == "" {
		return nil, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}

	info := &TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
