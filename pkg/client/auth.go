package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/session"
)

const (
	// renewalMargin is how close to expiry a stored session may be and still
	// be reused.
	renewalMargin = 30 * time.Second

	// persistInterval limits how often request activity is written back to
	// the session store.
	persistInterval = time.Minute
)

// Connect ensures the client holds a live session, reusing one from the
// session store when Redis is configured.
func (c *Client) Connect(ctx context.Context) error {
	return c.ensureSession(ctx)
}

// Close releases the client's session. With a shared session store the
// server session stays alive for other clients; otherwise Close logs out.
func (c *Client) Close(ctx context.Context) error {
	if c.sessions != nil {
		c.mu.Lock()
		c.state = nil
		c.mu.Unlock()
		return nil
	}
	return c.Logout(ctx)
}

// Logout ends the server session and removes it from the session store.
func (c *Client) Logout(ctx context.Context) error {
	token := c.authToken()
	if token == "" {
		return nil
	}

	c.mu.Lock()
	c.state = nil
	c.mu.Unlock()

	if c.sessions != nil {
		if err := c.sessions.Delete(ctx, c.sessionKey()); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to delete stored session")
		}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAuthToken, token)

	resp, err := c.do(req, false)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	body := drain(resp)

	// 401 means the session was already gone
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout: %w", newAPIError(resp.StatusCode, body))
	}

	c.logger.Info().Str("user", c.config.Username).Msg("Logged out")
	return nil
}

func (c *Client) authToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return ""
	}
	return c.state.AuthToken
}

func (c *Client) sessionKey() string {
	return session.Key(c.config.BaseURL, c.config.Username)
}

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.RLock()
	var token string
	live := false
	if c.state != nil {
		token = c.state.AuthToken
		live = !c.state.IsExpired()
	}
	c.mu.RUnlock()

	if live {
		return nil
	}
	return c.renew(ctx, token)
}

// renew replaces the session identified by stale. Concurrent callers that
// saw the same stale token share a single login.
func (c *Client) renew(ctx context.Context, stale string) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if current := c.authToken(); current != "" && current != stale {
		return nil
	}

	if c.sessions != nil {
		key := c.sessionKey()
		stored, err := c.sessions.Get(ctx, key)
		switch {
		case err == nil && stored.AuthToken != stale && !stored.NeedsRenewal(renewalMargin):
			c.adopt(stored)
			loginsTotal.WithLabelValues("store").Inc()
			c.logger.Debug().Str("user", c.config.Username).Msg("Reusing stored session")
			return nil
		case err == nil && stored.AuthToken == stale:
			if err := c.sessions.Delete(ctx, key); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to delete stale session")
			}
		case err != nil && !errors.Is(err, session.ErrNoSession):
			c.logger.Warn().Err(err).Msg("Session store unavailable, logging in")
		}
	}

	source := "login"
	if stale != "" {
		source = "renewal"
	}
	return c.login(ctx, source)
}

func (c *Client) login(ctx context.Context, source string) error {
	payload := map[string]any{"loginMode": int(c.config.LoginMode)}
	if c.config.LoginMode != LoginModeAnonymous {
		payload["username"] = c.config.Username
		payload["password"] = c.config.Password
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/login", nil, payload)
	if err != nil {
		return err
	}

	resp, err := c.do(req, false)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	body := drain(resp)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("login as %q: %w", c.config.Username, newAPIError(resp.StatusCode, body))
	}

	state, err := session.StateFromResponse(resp, c.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.adopt(state)

	loginsTotal.WithLabelValues(source).Inc()
	c.logger.Info().
		Str("user", c.config.Username).
		Str("source", source).
		Msg("Logged in")

	if c.sessions != nil {
		if err := c.sessions.Save(ctx, c.sessionKey(), state); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to store session")
		}
	}
	return nil
}

// adopt makes state the active session.
func (c *Client) adopt(state *session.State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	if c.httpClient.Jar != nil {
		c.httpClient.Jar.SetCookies(c.baseURL, state.HTTPCookies())
	}
}

// touchSession extends the session after a successful request, since the
// server resets its idle timer on every call.
func (c *Client) touchSession(ctx context.Context) {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return
	}
	persist := c.sessions != nil && time.Since(c.state.LastUpdate) > persistInterval
	c.state.Extend(c.config.SessionTTL)
	c.mu.Unlock()

	if persist {
		if err := c.sessions.Touch(ctx, c.sessionKey(), c.config.SessionTTL); err != nil && !errors.Is(err, session.ErrNoSession) {
			c.logger.Warn().Err(err).Msg("Failed to extend stored session")
		}
	}
}
