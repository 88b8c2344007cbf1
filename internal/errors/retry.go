package errors

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures retry behavior for auxiliary requests such as
// OpenAPI document fetches and token endpoint calls. Probes are never
// retried because their status and timing are the evidence.
type RetryConfig struct {
	MaxRetries     int           // 0 = no retries
	InitialDelay   time.Duration // delay before the first retry
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         float64 // 0-1
	RetryableTypes []ErrorType
	// OnRetry, when set, is called before each retry with the failed
	// attempt number, starting at 1.
	OnRetry func(operation string, attempt int, err error)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		RetryableTypes: []ErrorType{
			Network,
			Timeout,
			RateLimit,
			ServerError,
		},
	}
}

// Retrier implements retry logic with exponential backoff.
type Retrier struct {
	config RetryConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewRetrier creates a new retrier.
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewDefaultRetrier creates a retrier with default configuration.
func NewDefaultRetrier() *Retrier {
	return NewRetrier(DefaultRetryConfig())
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryResult holds the result of a retry operation.
type RetryResult struct {
	Attempts  int
	LastError error
	Duration  time.Duration
	Success   bool
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent.
func (r *Retrier) Do(ctx context.Context, operation string, url string, fn RetryFunc) *RetryResult {
	result := &RetryResult{}
	start := time.Now()

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts++

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.Duration = time.Since(start)
			return result
		}
		result.LastError = err

		if ctx.Err() != nil {
			result.LastError = NewCancelledError(url, operation)
			break
		}
		if attempt >= r.config.MaxRetries || !r.shouldRetry(err) {
			break
		}

		if r.config.OnRetry != nil {
			r.config.OnRetry(operation, attempt+1, err)
		}

		delay := BackoffDuration(attempt+1, r.config.InitialDelay, r.config.MaxDelay, r.config.Multiplier)
		select {
		case <-ctx.Done():
			result.LastError = NewCancelledError(url, operation)
			result.Duration = time.Since(start)
			return result
		case <-time.After(r.withJitter(delay)):
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Retrier) shouldRetry(err error) bool {
	errType := GetErrorType(err)
	for _, t := range r.config.RetryableTypes {
		if errType == t {
			return true
		}
	}
	return IsRetryable(err)
}

func (r *Retrier) withJitter(base time.Duration) time.Duration {
	if r.config.Jitter <= 0 {
		return base
	}

	r.mu.Lock()
	f := r.rng.Float64()
	r.mu.Unlock()

	jitter := r.config.Jitter * float64(base)
	return time.Duration(float64(base) + (f*2*jitter - jitter))
}

// DoWithResult executes a function that returns a value and error.
func DoWithResult[T any](ctx context.Context, r *Retrier, operation, url string, fn func(ctx context.Context) (T, error)) (T, *RetryResult) {
	var result T

	retryResult := r.Do(ctx, operation, url, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})

	return result, retryResult
}

// BackoffDuration is the delay before retry number attempt: initial grown
// by multiplier per earlier retry, capped at max.
func BackoffDuration(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}

	return time.Duration(delay)
}
