package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMissingToken is returned by a TokenSource that has no credential.
var ErrMissingToken = errors.New("API token is not set")

// ErrInvalidCursor marks a pagination cursor from the server that is not a
// usable URL. It is bad response data, so it carries no ErrorClass.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// ConfigurationError reports a missing or invalid credential or setting.
// It is raised before any network call is attempted.
type ConfigurationError struct {
	Setting string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("WaniKani configuration error (%s): %v", e.Setting, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure to reach the service: DNS, refused
// connections, timeouts, cancellation or a truncated body.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("WaniKani network error (%s %s): %v", e.Method, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response. Body is kept verbatim.
type HTTPError struct {
	StatusCode int
	ErrorClass ErrorClass
	Method     string
	URL        string
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("WaniKani %s error (status %d): %s", e.ErrorClass, e.StatusCode, e.Message())
}

// Message returns the "error" field of a WaniKani error body, falling back
// to the raw body.
func (e *HTTPError) Message() string {
	if msg := gjson.GetBytes(e.Body, "error"); msg.Type == gjson.String {
		return msg.String()
	}
	const maxBody = 256
	if len(e.Body) > maxBody {
		return string(e.Body[:maxBody]) + "..."
	}
	return string(e.Body)
}

// shouldRetry determines if an error class is worth retrying by a caller.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassConfiguration:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether restarting the failed operation may succeed.
// The client never retries on its own; this is for callers that opt in.
func IsRetryable(err error) bool {
	return shouldRetry(ClassOf(err))
}

// ClassOf returns the ErrorClass of err, or "" for errors the client did not produce.
func ClassOf(err error) ErrorClass {
	var cfgErr *ConfigurationError
	var transportErr *TransportError
	var httpErr *HTTPError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return ErrorClassConfiguration
	case errors.As(err, &httpErr):
		return httpErr.ErrorClass
	case errors.As(err, &transportErr):
		if errors.Is(err, context.Canceled) {
			return ""
		}
		return ErrorClassNetwork
	default:
		return ""
	}
}
