package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request may succeed on another backend
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether an error is worth retrying on another backend.
// Transport failures and timeouts are retryable; errors the provider did not
// classify are treated as retryable so an unknown outage still falls through
// the chain.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return true
}

// RetryableStatus classifies an HTTP status code from an upstream provider.
// Rate limiting, request timeouts and server faults are transient; client
// faults (bad request, auth, unknown model) will fail identically everywhere.
func RetryableStatus(statusCode int) bool {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// StatusErrorCode maps an upstream HTTP status to a provider error code
func StatusErrorCode(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return "AUTH_ERROR"
	case statusCode == http.StatusNotFound:
		return "MODEL_NOT_FOUND"
	case statusCode == http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case statusCode >= 500:
		return "UPSTREAM_ERROR"
	default:
		return "REQUEST_ERROR"
	}
}
