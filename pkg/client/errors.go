package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrVersionUnavailable is returned when the server version cannot be parsed.
	ErrVersionUnavailable = errors.New("server version unavailable")

	// ErrUnsupportedVersion is returned for features the server is too old for.
	ErrUnsupportedVersion = errors.New("unsupported server version")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAuth represents 401 responses; the session is gone.
	ErrorClassAuth ErrorClass = "auth"
)

// classifyStatus maps an HTTP status to an ErrorClass. Success and redirect
// statuses have no class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorClassAuth
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// APIError is an error response from the REST API.
type APIError struct {
	StatusCode int        `json:"-"`
	ErrorClass ErrorClass `json:"-"`

	// Code is the REST error code, e.g. "ERR004".
	Code string `json:"code"`
	// Message is the server's description of the failure.
	Message string `json:"message"`
	// TicketID identifies the failure in the server logs.
	TicketID string `json:"ticketId"`
	// IServerCode is the Intelligence Server error number, if any.
	IServerCode int64 `json:"iServerCode"`

	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	s := fmt.Sprintf("mstr %s error (status %d): %s", e.ErrorClass, e.StatusCode, msg)
	if e.Code != "" {
		s += fmt.Sprintf(" [code %s", e.Code)
		if e.TicketID != "" {
			s += ", ticket " + e.TicketID
		}
		s += "]"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError builds an APIError from a non-2xx response body. Bodies that
// are not JSON error objects keep the HTTP status text as message.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr = &APIError{}
		}
	}
	apiErr.StatusCode = status
	apiErr.ErrorClass = classifyStatus(status)
	return apiErr
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// client errors fail the same way again; auth is handled by session renewal
		return false
	}
}

// classOf extracts the ErrorClass carried by err. Errors without a class are
// treated as network failures.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}
