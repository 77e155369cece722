// Package session shares Intelligence Server login sessions between client
// instances through Redis. A cached session spares a login round trip and
// keeps the server's session count down when many short-lived processes talk
// to the same server.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Redis key layout.
const (
	RedisKeyPrefix = "mstr:session"
)

// HeaderAuthToken carries the session token on every request after login.
const HeaderAuthToken = "X-MSTR-AuthToken"

// DefaultTTL matches the server's default idle session timeout.
const DefaultTTL = 10 * time.Minute

// ErrNoToken is returned when a login response carries no auth token.
var ErrNoToken = errors.New("login response has no auth token")

// Cookie is the part of a session cookie that must be replayed.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path,omitempty"`
}

// State is an authenticated session.
type State struct {
	// AuthToken is the X-MSTR-AuthToken value returned by login.
	AuthToken string `json:"auth_token"`

	// Cookies bind the token to the server node that issued it.
	Cookies []Cookie `json:"cookies"`

	// ExpiresAt is when the server will drop the session if it stays idle.
	ExpiresAt time.Time `json:"expires_at"`

	// LastUpdate is when the session was created or last extended.
	LastUpdate time.Time `json:"last_update"`
}

// Key builds the Redis key for a server and user.
func Key(baseURL, username string) string {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("%s:%s:%s", RedisKeyPrefix, strings.ToLower(host), username)
}

// StateFromResponse builds a session from a successful login response.
func StateFromResponse(resp *http.Response, ttl time.Duration) (*State, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	token := resp.Header.Get(HeaderAuthToken)
	if token == "" {
		return nil, ErrNoToken
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	state := &State{
		AuthToken:  token,
		ExpiresAt:  now.Add(ttl),
		LastUpdate: now,
	}
	for _, c := range resp.Cookies() {
		state.Cookies = append(state.Cookies, Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return state, nil
}

// IsExpired returns true if the session has passed its idle timeout.
func (s *State) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// NeedsRenewal returns true if the session expires within margin.
func (s *State) NeedsRenewal(margin time.Duration) bool {
	return time.Until(s.ExpiresAt) <= margin
}

// TimeUntilExpiry returns the remaining session lifetime, or 0.
func (s *State) TimeUntilExpiry() time.Duration {
	d := time.Until(s.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// Extend pushes the expiry out by ttl from now. The server resets its idle
// timer on every request.
func (s *State) Extend(ttl time.Duration) {
	now := time.Now()
	s.ExpiresAt = now.Add(ttl)
	s.LastUpdate = now
}

// HTTPCookies converts the stored cookies for a cookie jar.
func (s *State) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return cookies
}
