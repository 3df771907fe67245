package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is an API failure reported by a chat provider.
//
// Adapters classify provider failures so that node retry policies can retry
// only transient ones:
//
//	graph.WithRetry(graph.RetryPolicy{
//	    MaxAttempts:     4,
//	    InitialInterval: time.Second,
//	    RetryOn:         model.IsRetryable,
//	})
type ProviderError struct {
	// Provider names the adapter, e.g. "openai".
	Provider string

	// StatusCode is the HTTP status of the failed request, or 0 if unknown.
	StatusCode int

	// Retryable reports whether repeating the request may succeed.
	Retryable bool

	// Err is the underlying SDK error.
	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrEmptyResponse is returned when a provider replies without any content.
var ErrEmptyResponse = errors.New("model returned no content")

// RetryableStatus reports whether an HTTP status is worth retrying:
// request timeouts, conflicts, rate limits and server errors.
func RetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable ProviderError.
// Use it as a RetryPolicy.RetryOn predicate.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}
