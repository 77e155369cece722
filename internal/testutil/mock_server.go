// Package testutil provides a mock Intelligence Server for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultVersion is the iServerVersion reported by /api/status.
const DefaultVersion = "11.3.0960.00068"

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockServer is a configurable mock Intelligence Server. Login, logout and
// status are built in; every other path requires a token issued by login.
type MockServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	tokens   map[string]bool
	tokenSeq int
	version  string

	// Tracking
	RequestCount      int
	LoginCount        int
	LogoutCount       int
	ConditionalCount  int
	LastRequestHeader http.Header
	LastLoginBody     map[string]any
}

// NewMockServer starts a mock server.
func NewMockServer() *MockServer {
	mock := &MockServer{
		handlers: make(map[string]http.HandlerFunc),
		tokens:   make(map[string]bool),
		version:  DefaultVersion,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		mock.mu.Unlock()

		switch r.URL.Path {
		case "/api/auth/login":
			mock.login(w, r)
			return
		case "/api/auth/logout":
			mock.logout(w, r)
			return
		case "/api/status":
			mock.status(w)
			return
		}

		if !mock.authorized(r) {
			WriteError(w, http.StatusUnauthorized, "ERR009", "The user's session has expired, please reauthenticate")
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}
		WriteError(w, http.StatusNotFound, "ERR004", "Not found: "+r.URL.Path)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LoginCount = 0
	m.LogoutCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.LastLoginBody = nil
}

// SetVersion sets the iServerVersion reported by /api/status.
func (m *MockServer) SetVersion(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
}

// ExpireSessions invalidates every issued token, so the next request gets 401.
func (m *MockServer) ExpireSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = make(map[string]bool)
}

// SetHandler sets a handler for a path. A key of the form "GET /path"
// matches only that method.
func (m *MockServer) SetHandler(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// SetResponse configures a canned response for a pattern.
func (m *MockServer) SetResponse(pattern string, resp MockResponse) {
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON configures a 200 response with v encoded as JSON.
func (m *MockServer) SetJSON(pattern string, v any) {
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, v)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLoginCount returns the number of successful logins.
func (m *MockServer) GetLoginCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LoginCount
}

// GetLogoutCount returns the number of logouts.
func (m *MockServer) GetLogoutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LogoutCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockServer) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

func (m *MockServer) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "ERR001", "login requires POST")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "ERR001", "invalid login body")
		return
	}
	if body["password"] == "wrong" {
		WriteError(w, http.StatusUnauthorized, "ERR003", "Invalid credentials")
		return
	}

	m.mu.Lock()
	m.tokenSeq++
	token := "token-" + strconv.Itoa(m.tokenSeq)
	m.tokens[token] = true
	m.LoginCount++
	m.LastLoginBody = body
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "node-" + token, Path: "/"})
	w.Header().Set("X-MSTR-AuthToken", token)
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-MSTR-AuthToken")
	m.mu.Lock()
	known := m.tokens[token]
	delete(m.tokens, token)
	if known {
		m.LogoutCount++
	}
	m.mu.Unlock()

	if !known {
		WriteError(w, http.StatusUnauthorized, "ERR009", "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) status(w http.ResponseWriter) {
	m.mu.RLock()
	version := m.version
	m.mu.RUnlock()
	WriteJSON(w, http.StatusOK, map[string]any{
		"webVersion":     version,
		"iServerVersion": version,
	})
}

func (m *MockServer) authorized(r *http.Request) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[r.Header.Get("X-MSTR-AuthToken")]
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a REST error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]any{
		"code":     code,
		"message":  message,
		"ticketId": "ticket-" + strconv.Itoa(status),
	})
}

// NewJSONResponse creates a 200 response with an ETag.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"ETag":         `"test-etag-123"`,
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 response with a REST error body.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code":"ERR001","message":"Internal server error","iServerCode":-2147072488}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"code":"ERR016","message":"Too many requests"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewConditionalHandler creates a handler that answers 304 when the request
// carries etag in If-None-Match. Full responses are already expired, so the
// next cached read revalidates.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Expires", time.Now().Add(-time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// NewPagedHandler serves items with offset/limit query parameters and the
// x-mstr-total-count header. wrap, if set, builds the body from a page.
func NewPagedHandler(items []map[string]any, wrap func(page []map[string]any) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := PageParams(r, len(items))
		end := min(offset+limit, len(items))
		page := []map[string]any{}
		if offset < end {
			page = items[offset:end]
		}
		w.Header().Set("X-Mstr-Total-Count", strconv.Itoa(len(items)))
		if wrap != nil {
			WriteJSON(w, http.StatusOK, wrap(page))
			return
		}
		WriteJSON(w, http.StatusOK, page)
	}
}

// PageParams reads offset and limit from the query. A missing or negative
// limit means all rows.
func PageParams(r *http.Request, total int) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		limit = total
	}
	return offset, limit
}

// PathSegment returns the i-th segment of the request path, counting from 0.
func PathSegment(r *http.Request, i int) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}
