// Package token models the access/refresh token pair and its persisted
// form in a key-value cache.
package token

import (
	"errors"
	"math"
	"time"
)

// MinTime and MaxTime bound the instants the cache can represent
// (epoch milliseconds in an int64).
var (
	MinTime = time.UnixMilli(math.MinInt64)
	MaxTime = time.UnixMilli(math.MaxInt64)
)

// ErrMissingAccessToken is returned when an authorization response lacks
// the access_token field.
var ErrMissingAccessToken = errors.New("token: response has no access_token")

// AccessToken is the credential pair for one session. An empty AccessToken
// field is never valid, whatever its expiry says.
type AccessToken struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// AuthResponse is the token endpoint payload.
type AuthResponse struct {
	AccessToken           string `json:"access_token"`
	TokenType             string `json:"token_type,omitempty"`
	RefreshToken          string `json:"refresh_token,omitempty"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in,omitempty"`
	Scope                 string `json:"scope,omitempty"`
}

// Empty returns a token with no credentials and both halves already expired.
func Empty() *AccessToken {
	return &AccessToken{
		AccessTokenExpiresAt:  MinTime,
		RefreshTokenExpiresAt: MinTime,
	}
}

// FromResponse builds a token from an authorization response received at
// now. The refresh token is optional; without a server-provided lifetime it
// never expires locally.
func FromResponse(resp AuthResponse, now time.Time) (*AccessToken, error) {
	if resp.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}

	tok := &AccessToken{
		AccessToken:           resp.AccessToken,
		RefreshToken:          resp.RefreshToken,
		AccessTokenExpiresAt:  expiresAt(now, resp.ExpiresIn),
		RefreshTokenExpiresAt: MaxTime,
	}

	if resp.RefreshToken != "" && resp.RefreshTokenExpiresIn > 0 {
		tok.RefreshTokenExpiresAt = expiresAt(now, resp.RefreshTokenExpiresIn)
	}

	return tok, nil
}

// expiresAt adds a lifetime in seconds to now. Lifetimes too long for a
// time.Duration never expire.
func expiresAt(now time.Time, seconds int64) time.Time {
	if seconds > math.MaxInt64/int64(time.Second) {
		return MaxTime
	}

	return now.Add(time.Duration(seconds) * time.Second)
}

// HasValidAccessToken reports whether the access token is usable right now.
func (t *AccessToken) HasValidAccessToken() bool {
	return t.ValidAt(time.Now())
}

// ValidAt reports whether the access token is non-empty and expires after now.
func (t *AccessToken) ValidAt(now time.Time) bool {
	return t != nil && t.AccessToken != "" && t.AccessTokenExpiresAt.After(now)
}

// HasRefreshToken reports whether a refresh token is present.
func (t *AccessToken) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// HasValidRefreshToken reports whether the refresh token is present and
// not expired at now.
func (t *AccessToken) HasValidRefreshToken(now time.Time) bool {
	return t.HasRefreshToken() && t.RefreshTokenExpiresAt.After(now)
}

// RemainingAccessTTL returns how long the access token stays valid, or 0.
func (t *AccessToken) RemainingAccessTTL(now time.Time) time.Duration {
	if !t.ValidAt(now) {
		return 0
	}

	return t.AccessTokenExpiresAt.Sub(now)
}

// Update adopts next. Refresh responses may omit the refresh token; in that
// case only the access half is replaced and the current refresh token and
// its expiry are kept.
func (t *AccessToken) Update(next *AccessToken) {
	if next == nil {
		return
	}

	t.AccessToken = next.AccessToken
	t.AccessTokenExpiresAt = next.AccessTokenExpiresAt

	if next.RefreshToken == "" {
		return
	}

	t.RefreshToken = next.RefreshToken
	t.RefreshTokenExpiresAt = next.RefreshTokenExpiresAt
}

// Clone returns an independent copy.
func (t *AccessToken) Clone() *AccessToken {
	if t == nil {
		return Empty()
	}

	c := *t

	return &c
}

// clearAccess and clearRefresh reset one half in memory. Expiries go to
// MinTime so a cleared half can never look valid.
func (t *AccessToken) clearAccess() {
	t.AccessToken = ""
	t.AccessTokenExpiresAt = MinTime
}

func (t *AccessToken) clearRefresh() {
	t.RefreshToken = ""
	t.RefreshTokenExpiresAt = MinTime
}
