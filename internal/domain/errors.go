package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured indicates that no credential (device token or legacy key)
// is available. It is fatal to any network attempt and must surface as a
// "configure me" condition, never as a silent unauthenticated call.
var ErrNotConfigured = errors.New("no credential configured")

// ErrCacheMiss indicates a key is absent from the status cache, or present but
// expired. Expired entries are logically absent, never returned stale.
var ErrCacheMiss = errors.New("status not found in cache")

// ErrInvalidPairingCode indicates a pairing code that is not 6 characters long.
// Rejected locally, before any network attempt.
var ErrInvalidPairingCode = errors.New("pairing code must be exactly 6 characters")

// APIError carries a non-success response from the cloud API. The status code
// is preserved so callers can discriminate transient from permanent failures
// (404 not found vs. 410 expired vs. 429 rate limited).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud api returned status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a cloud 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsExpired reports whether err is a cloud 410 (expired or already consumed).
func IsExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusGone
}

// IsRateLimited reports whether err is a cloud 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

// ErrorCode represents a specific error condition reported to clients.
type ErrorCode string

const (
	ErrCodeNotConfigured ErrorCode = "NotConfigured" // no credential; prompt pairing/configuration
	ErrCodeNotFound      ErrorCode = "NotFound"      // cloud 404
	ErrCodeExpired       ErrorCode = "Expired"       // cloud 410, e.g. consumed pairing code
	ErrCodeRateLimited   ErrorCode = "RateLimited"   // cloud 429
	ErrCodeUpstream      ErrorCode = "UpstreamError" // other cloud failure or transport error
	ErrCodeBadRequest    ErrorCode = "BadRequest"    // malformed operation payload
	ErrCodeInternal      ErrorCode = "InternalServerError"
)

// CodeForError maps an engine error onto the wire-level error code.
func CodeForError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrInvalidPairingCode):
		return ErrCodeBadRequest
	case IsNotFound(err):
		return ErrCodeNotFound
	case IsExpired(err):
		return ErrCodeExpired
	case IsRateLimited(err):
		return ErrCodeRateLimited
	default:
		return ErrCodeUpstream
	}
}

// ErrorResponse is the standard error format returned to clients via WebSocket or HTTP JSON.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}
