// Package remoteapi implements the Remote Client: logical operations
// against the cloud drive (list, get-folder, upload, download,
// create-folder, rename, delete, space-usage), parameterized by a
// workspace identifier.
package remoteapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification. Use errors.Is
// against these, never a raw status code comparison.
var (
	ErrBadRequest    = errors.New("remoteapi: bad request")
	ErrUnauthorized  = errors.New("remoteapi: unauthorized")
	ErrForbidden     = errors.New("remoteapi: forbidden")
	ErrNotFound      = errors.New("remoteapi: not found")
	ErrConflict      = errors.New("remoteapi: conflict")
	ErrGone          = errors.New("remoteapi: resource gone")
	ErrThrottled     = errors.New("remoteapi: throttled")
	ErrLocked        = errors.New("remoteapi: resource locked")
	ErrServerError   = errors.New("remoteapi: server error")
	ErrQuotaExceeded = errors.New("remoteapi: storage quota exceeded")

	// ErrUnprocessable is a 422 response. The remote API uses this status
	// for transient overload on large request bodies (§4.2), so unlike a
	// normal "client sent something wrong" 4xx it is retryable.
	ErrUnprocessable = errors.New("remoteapi: unprocessable entity")
)

// APIError wraps a sentinel error with the HTTP status, request ID, and
// response body for debugging, while still satisfying errors.Is against
// the sentinel via Unwrap.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("remoteapi: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("remoteapi: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns
// nil for 2xx codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	case http.StatusInsufficientStorage:
		return ErrQuotaExceeded
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether a response with this status code should be
// retried by the caller's retry loop.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
