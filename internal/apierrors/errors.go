package apierrors

import (
	"errors"
	"fmt"
)

// ValidationError reports bad local input (file type, size, missing column,
// empty form fields). Always recoverable at the call site; never a system
// fault.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidation builds a ValidationError with a formatted reason.
func NewValidation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NetworkError means no response reached us at all: connection refused, DNS
// failure, or a timed-out request. Distinct from HTTPError so callers can
// show "cannot reach server" instead of blaming the request.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cannot reach server at %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// HTTPError is a non-2xx response from the server. Message comes from the
// response body when the server supplied one, otherwise a per-status
// fallback.
type HTTPError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Path, e.Message, e.StatusCode)
}

// NewHTTP builds an HTTPError, substituting a per-status fallback message
// when the server body carried none.
func NewHTTP(statusCode int, path, message string) *HTTPError {
	if message == "" {
		message = fallbackMessage(statusCode)
	}
	return &HTTPError{StatusCode: statusCode, Path: path, Message: message}
}

func fallbackMessage(statusCode int) string {
	switch statusCode {
	case 400:
		return "invalid input"
	case 401:
		return "invalid credentials or expired session"
	case 403:
		return "this action is restricted"
	case 409:
		return "conflict or duplicate"
	case 422:
		return "malformed payload"
	case 500:
		return "the server hit a transient fault, try again"
	default:
		return fmt.Sprintf("request failed with status %d", statusCode)
	}
}

// AsHTTP unwraps err into an HTTPError, if it is one.
func AsHTTP(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// ErrSessionExpired marks a 401 on a non-auth endpoint. Handled globally by
// the HTTP client (token cleared, session-expired callback fired); call
// sites only ever see this sentinel.
var ErrSessionExpired = errors.New("session expired, please log in again")

// NewSessionExpired wraps ErrSessionExpired with the path that triggered it.
func NewSessionExpired(path string) error {
	return fmt.Errorf("%s: %w", path, ErrSessionExpired)
}

// IsSessionExpired reports whether err is (or wraps) ErrSessionExpired.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
