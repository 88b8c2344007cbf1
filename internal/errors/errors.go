// Package errors provides the error taxonomy for API probes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Network represents DNS and connection failures.
	Network
	// Timeout represents probe timeouts.
	Timeout
	// RateLimit represents 429 responses.
	RateLimit
	// Auth represents 401 and 403 responses.
	Auth
	// NotFound represents 404 responses.
	NotFound
	// ServerError represents 5xx responses.
	ServerError
	// ClientError represents other 4xx responses.
	ClientError
	// Parse represents malformed responses or tokens.
	Parse
	// Config represents invalid session configuration.
	Config
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case RateLimit:
		return "rate_limit"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case Parse:
		return "parse"
	case Config:
		return "config"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this type should be retried.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Network, Timeout, RateLimit, ServerError:
		return true
	default:
		return false
	}
}

// ProbeError is a categorized probe or configuration error.
type ProbeError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	target := e.URL
	if target == "" {
		target = "session"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, target, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is matches another ProbeError of the same type.
func (e *ProbeError) Is(target error) bool {
	t, ok := target.(*ProbeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new ProbeError.
func New(errType ErrorType, url, operation, message string, cause error) *ProbeError {
	return &ProbeError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *ProbeError {
	return New(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ProbeError {
	return New(Timeout, url, operation, "request timed out", cause)
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(url string, retryAfter int) *ProbeError {
	err := New(RateLimit, url, "request", fmt.Sprintf("rate limited, retry after %ds", retryAfter), nil)
	err.StatusCode = 429
	return err
}

// NewAuthError creates an authentication error.
func NewAuthError(url string, statusCode int, message string) *ProbeError {
	err := New(Auth, url, "request", message, nil)
	err.StatusCode = statusCode
	return err
}

// NewServerError creates a server error.
func NewServerError(url string, statusCode int, message string) *ProbeError {
	err := New(ServerError, url, "request", message, nil)
	err.StatusCode = statusCode
	return err
}

// NewClientError creates a client error.
func NewClientError(url string, statusCode int, message string) *ProbeError {
	err := New(ClientError, url, "request", message, nil)
	err.StatusCode = statusCode
	return err
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *ProbeError {
	return New(Parse, url, operation, "parsing failed", cause)
}

// NewConfigError creates a configuration error. These are returned before
// any probe is sent.
func NewConfigError(operation, message string) *ProbeError {
	return New(Config, "", operation, message, nil)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ProbeError {
	return New(Cancelled, url, operation, "operation cancelled", context.Canceled)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *ProbeError {
	if err == nil {
		return nil
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return New(Unknown, url, "request", err.Error(), err)
}

// CategorizeHTTPStatus creates an error from an HTTP status code.
func CategorizeHTTPStatus(statusCode int, url string) *ProbeError {
	switch {
	case statusCode == 401:
		return NewAuthError(url, statusCode, "unauthorized")
	case statusCode == 403:
		return NewAuthError(url, statusCode, "forbidden")
	case statusCode == 404:
		err := New(NotFound, url, "request", "not found", nil)
		err.StatusCode = statusCode
		return err
	case statusCode == 429:
		return NewRateLimitError(url, 60)
	case statusCode >= 500:
		return NewServerError(url, statusCode, fmt.Sprintf("server returned %d", statusCode))
	case statusCode >= 400:
		return NewClientError(url, statusCode, fmt.Sprintf("client error %d", statusCode))
	default:
		return nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return GetErrorType(err) == Config
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return GetErrorType(err) == Cancelled || errors.Is(err, context.Canceled)
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type
	}
	return Unknown
}
