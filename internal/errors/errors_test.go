package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Network, "network"},
		{Timeout, "timeout"},
		{RateLimit, "rate_limit"},
		{Auth, "auth"},
		{NotFound, "not_found"},
		{ServerError, "server_error"},
		{ClientError, "client_error"},
		{Parse, "parse"},
		{Config, "config"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_IsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{Network, true},
		{Timeout, true},
		{RateLimit, true},
		{ServerError, true},
		{Auth, false},
		{NotFound, false},
		{ClientError, false},
		{Parse, false},
		{Config, false},
		{Cancelled, false},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			if got := tt.errType.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

// =============================================================================
// ProbeError Tests
// =============================================================================

func TestProbeError_Error(t *testing.T) {
	err := NewTimeoutError("http://api.test/users", "fuzz", nil)
	msg := err.Error()

	if !strings.Contains(msg, "timeout") || !strings.Contains(msg, "http://api.test/users") {
		t.Errorf("Error() = %q, want type and url", msg)
	}
}

func TestProbeError_ConfigHasNoURL(t *testing.T) {
	err := NewConfigError("new_session", "base URL is required")

	if !strings.Contains(err.Error(), "session") {
		t.Errorf("Error() = %q, want session placeholder", err.Error())
	}
	if err.Retryable {
		t.Error("config errors must not be retryable")
	}
	if !IsConfigError(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsConfigError should see through wrapping")
	}
}

func TestProbeError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("boom")
	err := NewNetworkError("u", "op", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, &ProbeError{Type: Network}) {
		t.Error("errors.Is should match by type")
	}
	if errors.Is(err, &ProbeError{Type: Timeout}) {
		t.Error("errors.Is should not match another type")
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"context canceled", context.Canceled, Cancelled},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, Network},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, Network},
		{"other", errors.New("weird"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err, "http://api.test")
			if got.Type != tt.want {
				t.Errorf("Categorize() type = %v, want %v", got.Type, tt.want)
			}
		})
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil, "u") != nil {
		t.Error("Categorize(nil) should be nil")
	}
}

func TestCategorize_KeepsProbeError(t *testing.T) {
	orig := NewParseError("u", "decode", nil)
	if got := Categorize(orig, "other"); got != orig {
		t.Error("Categorize should return the existing ProbeError")
	}
}

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
		isNil  bool
	}{
		{200, Unknown, true},
		{302, Unknown, true},
		{401, Auth, false},
		{403, Auth, false},
		{404, NotFound, false},
		{429, RateLimit, false},
		{400, ClientError, false},
		{500, ServerError, false},
		{503, ServerError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			got := CategorizeHTTPStatus(tt.status, "u")
			if tt.isNil {
				if got != nil {
					t.Errorf("CategorizeHTTPStatus(%d) = %v, want nil", tt.status, got)
				}
				return
			}
			if got.Type != tt.want || got.StatusCode != tt.status {
				t.Errorf("CategorizeHTTPStatus(%d) = %v/%d", tt.status, got.Type, got.StatusCode)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	err := NewServerError("u", 502, "bad gateway")

	if !IsRetryable(err) {
		t.Error("server errors are retryable")
	}
	if GetErrorType(err) != ServerError {
		t.Errorf("GetErrorType = %v", GetErrorType(err))
	}
	if GetErrorType(errors.New("x")) != Unknown {
		t.Error("plain errors are Unknown")
	}
	if !IsCancelled(NewCancelledError("u", "op")) {
		t.Error("IsCancelled should be true")
	}
}

// =============================================================================
// Retrier Tests
// =============================================================================

func TestRetrier_Do_Success(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return nil
	})

	if !result.Success || result.Attempts != 1 || calls != 1 {
		t.Errorf("result = %+v, calls = %d", result, calls)
	}
}

func TestRetrier_Do_RetryOnError(t *testing.T) {
	var retried []int
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
		OnRetry: func(operation string, attempt int, err error) {
			retried = append(retried, attempt)
		},
	})

	calls := 0
	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewNetworkError("url", "op", nil)
		}
		return nil
	})

	if !result.Success {
		t.Error("Should succeed after retries")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestRetrier_Do_NoRetryForNonRetryable(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return NewParseError("url", "decode", nil)
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1", calls)
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     5,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := r.Do(ctx, "test", "url", func(ctx context.Context) error {
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail on cancellation")
	}
	if !IsCancelled(result.LastError) {
		t.Errorf("LastError = %v, want cancellation", result.LastError)
	}
}

func TestDoWithResult(t *testing.T) {
	r := NewDefaultRetrier()

	v, res := DoWithResult(context.Background(), r, "op", "u", func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	if !res.Success || v != "ok" {
		t.Errorf("DoWithResult = %q, %+v", v, res)
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{10, time.Second},
	}

	for _, tt := range tests {
		got := BackoffDuration(tt.attempt, 100*time.Millisecond, time.Second, 2.0)
		if got != tt.want {
			t.Errorf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
