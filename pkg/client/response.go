package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/cache"
)

// Response is a fully read REST response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// TotalCount returns the x-mstr-total-count header of the response.
func (r *Response) TotalCount() (int, error) {
	return TotalCount(r.Header)
}

// TotalCount parses the x-mstr-total-count header used by paged listings.
func TotalCount(header http.Header) (int, error) {
	raw := strings.TrimSpace(header.Get(HeaderTotalCount))
	if raw == "" {
		return 0, fmt.Errorf("missing %s header", HeaderTotalCount)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s header: %w", HeaderTotalCount, err)
	}
	return n, nil
}

// Request sends an authenticated request and reads the response. Non-2xx
// responses are returned as *APIError.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	return c.request(ctx, method, path, query, body, true)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, authenticate bool) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, authenticate)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return readResponse(resp)
}

func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, query, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, query, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, query, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, query, nil)
}

// GetJSON performs a GET request and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return resp.JSON(out)
}

// GetCached performs a GET through the definition cache. Fresh entries are
// served without a request; stale entries with a validator are revalidated.
// Without Redis it is a plain Get.
func (c *Client) GetCached(ctx context.Context, path string, query url.Values) (*Response, error) {
	if c.cache == nil {
		return c.Get(ctx, path, query)
	}

	key := cache.CacheKey{
		Endpoint:    path,
		QueryParams: query,
		ProjectID:   c.projectFor(ctx),
	}

	entry, err := c.cache.Lookup(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("endpoint", path).Msg("Cache get error")
	}

	if entry != nil && !entry.IsExpired() {
		cache.CacheHits.WithLabelValues("fresh").Inc()
		c.logger.Debug().Str("endpoint", path).Dur("ttl", entry.TTL()).Msg("Serving cached definition")
		return entryResponse(entry), nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if entry != nil && cache.ShouldMakeConditionalRequest(entry) {
		cache.AddConditionalHeaders(req, entry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", path).
			Str("etag", entry.ETag).
			Msg("Making conditional request")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusNotModified && entry != nil {
		drain(resp)
		cache.NotModifiedResponses.Inc()
		cache.CacheHits.WithLabelValues("revalidated").Inc()
		if err := c.cache.UpdateTTL(ctx, key, time.Now().Add(c.cacheTTL())); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return entryResponse(entry), nil
	}

	if resp.StatusCode == http.StatusOK {
		fresh, err := cache.ResponseToEntry(resp, c.cacheTTL())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, key, fresh); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return readResponse(resp)
}

// Invalidate drops cached definitions below path, e.g. after an object was
// altered or deleted.
func (c *Client) Invalidate(ctx context.Context, path string) {
	if c.cache == nil {
		return
	}
	if _, err := c.cache.Invalidate(ctx, path); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to invalidate cache")
	}
}

func (c *Client) cacheTTL() time.Duration {
	if c.config.CacheTTL > 0 {
		return c.config.CacheTTL
	}
	return cache.DefaultTTL
}

func entryResponse(entry *cache.CacheEntry) *Response {
	resp := cache.EntryToResponse(entry)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       entry.Data,
	}
}
