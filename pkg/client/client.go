// Package client provides the REST client for MicroStrategy Intelligence
// Server with session management, definition caching, retries and error
// classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/cache"
	"github.com/Sternrassler/mstr-client/pkg/session"
	"github.com/blang/semver"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Request headers understood by the server.
const (
	HeaderAuthToken  = session.HeaderAuthToken
	HeaderProjectID  = "X-MSTR-ProjectID"
	HeaderTotalCount = "X-Mstr-Total-Count"
)

// LoginMode selects the authentication method.
type LoginMode int

const (
	LoginModeStandard  LoginMode = 1
	LoginModeAnonymous LoginMode = 8
	LoginModeLDAP      LoginMode = 16
)

// Client is the main Intelligence Server client. It is safe for concurrent
// use; parallel chunk fetches share one client and one session.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	sessions   *session.Store
	config     Config
	logger     zerolog.Logger

	mu      sync.RWMutex
	state   *session.State
	loginMu sync.Mutex

	versionMu sync.Mutex
	version   *semver.Version
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Library application, e.g. https://host/MicroStrategyLibrary
	BaseURL string

	// Credentials
	Username  string
	Password  string
	LoginMode LoginMode

	// ProjectID is sent as X-MSTR-ProjectID on every request
	ProjectID string

	// UserAgent header (REQUIRED)
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Retry: MaxRetries is the number of retries after the first attempt;
	// a positive InitialBackoff replaces the per-class backoff
	MaxRetries     int
	InitialBackoff time.Duration

	// Redis enables the definition cache and the shared session store
	Redis      *redis.Client
	CacheTTL   time.Duration
	SessionTTL time.Duration

	// HTTPClient overrides the default transport (a cookie jar is added if missing)
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:    baseURL,
		LoginMode:  LoginModeStandard,
		UserAgent:  userAgent,
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		CacheTTL:   10 * time.Minute,
		SessionTTL: session.DefaultTTL,
	}
}

// New creates a new client. No request is made until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.LoginMode == 0 {
		cfg.LoginMode = LoginModeStandard
	}
	if cfg.LoginMode != LoginModeAnonymous && cfg.Username == "" {
		return nil, fmt.Errorf("username is required for login mode %d", cfg.LoginMode)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}

	logger := log.With().Str("component", "mstr-client").Logger()

	httpClient, err := withCookieJar(cfg.HTTPClient, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		config:     cfg,
		logger:     logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
		c.sessions = session.NewStore(cfg.Redis, logger)
	}

	return c, nil
}

// withCookieJar returns a copy of hc with a cookie jar. The session cookie
// pins requests to the server node that issued the auth token.
func withCookieJar(hc *http.Client, timeout time.Duration) (*http.Client, error) {
	var out http.Client
	if hc != nil {
		out = *hc
	} else {
		out.Timeout = timeout
	}
	if out.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		out.Jar = jar
	}
	return &out, nil
}

// Do performs an authenticated HTTP request with retries and error
// classification. A 401 triggers one login and replay. Statuses that are not
// retried are returned to the caller unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, true)
}

func (c *Client) do(req *http.Request, authenticate bool) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if authenticate {
		if err := c.ensureSession(ctx); err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if project := c.projectFor(ctx); req.Header.Get(HeaderProjectID) == "" && project != "" {
		req.Header.Set(HeaderProjectID, project)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing request")

	resp, token, err := c.send(req, authenticate)
	if err != nil {
		return nil, err
	}

	if authenticate && resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.Warn().Str("endpoint", endpoint).Msg("Session rejected, logging in again")
		if err := c.renew(ctx, token); err != nil {
			return nil, err
		}
		if err := rewind(req); err != nil {
			return nil, err
		}
		if resp, _, err = c.send(req, authenticate); err != nil {
			return nil, err
		}
	}

	if authenticate && resp.StatusCode < 400 {
		c.touchSession(ctx)
	}
	return resp, nil
}

var errNoRewind = errors.New("request body cannot be replayed")

// send executes req with retry logic and returns the auth token it used.
func (c *Client) send(req *http.Request, authenticate bool) (*http.Response, string, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	var token string
	if authenticate {
		token = c.authToken()
		req.Header.Set(HeaderAuthToken, token)
	}

	var resp *http.Response
	attempt := 0
	err := retryWithPolicy(ctx, func() error {
		attempt++
		if attempt > 1 {
			if err := rewind(req); err != nil {
				return err
			}
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		errClass := classifyStatus(resp.StatusCode)
		if errClass == "" {
			return nil
		}
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request error")

		if !shouldRetry(errClass) {
			// let the caller handle the status
			return nil
		}

		status := resp.StatusCode
		body := drain(resp)
		resp = nil
		return newAPIError(status, body)
	}, func(err error) ErrorClass {
		if errors.Is(err, errNoRewind) {
			return ErrorClassClient
		}
		return classOf(err)
	}, c.retryPolicy)

	if err != nil {
		return nil, token, err
	}
	return resp, token, nil
}

// retryPolicy applies the configured retry budget to the per-class defaults.
func (c *Client) retryPolicy(errorClass ErrorClass) RetryConfig {
	cfg := RetryConfigForErrorClass(errorClass)
	cfg.MaxAttempts = c.config.MaxRetries + 1
	if c.config.InitialBackoff > 0 {
		cfg.InitialBackoff = c.config.InitialBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	return cfg
}

// rewind resets the request body before a replay.
func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errNoRewind
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("%w: %v", errNoRewind, err)
	}
	req.Body = body
	return nil
}

// drain reads and closes a response body.
func drain(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body
}

// newRequest builds a request for path below the base URL. body is sent as
// JSON unless it is already []byte.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// URL returns the absolute URL for a REST path.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ProjectID returns the configured project.
func (c *Client) ProjectID() string {
	return c.config.ProjectID
}

type projectKey struct{}

// WithProject returns a context whose requests target projectID instead of
// the configured project.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectKey{}, projectID)
}

// projectFor returns the project requests made with ctx target.
func (c *Client) projectFor(ctx context.Context) string {
	if id, ok := ctx.Value(projectKey{}).(string); ok && id != "" {
		return id
	}
	return c.config.ProjectID
}

// SetHTTPClient sets a custom HTTP client (for testing). The client's cookie
// jar is used as is.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the definition cache, or nil without Redis.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
