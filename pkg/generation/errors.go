package generation

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnparsableResponse is returned when the model's reply is not a JSON
// plan after the retry.
var ErrUnparsableResponse = errors.New("model response is not valid JSON")

// ProviderError represents a failed model API call.
type ProviderError struct {
	// Provider is the name of the API that failed, e.g. "anthropic".
	Provider string

	// StatusCode is the HTTP status code (0 if the request never completed).
	StatusCode int

	// Message is the error message or response body.
	Message string

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// RateLimitError is returned when the model API itself rejects a call with
// HTTP 429.
type RateLimitError struct {
	Provider string

	// RetryAfter is the delay the API asked for, if any.
	RetryAfter time.Duration

	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// ValidationError reports an invalid generation request.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}
