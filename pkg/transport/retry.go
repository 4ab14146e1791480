package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for API calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first
	// (default: 3).
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry (default: 1s).
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff between attempts (default: 30s).
	MaxBackoff time.Duration

	// BackoffFactor is the exponential backoff multiplier (default: 2.0).
	BackoffFactor float64

	// RetryableStatuses lists the HTTP status codes that are retried.
	// Default: [408, 429, 500, 502, 503, 504].
	RetryableStatuses []int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffFactor:     2.0,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

// Validate checks whether the retry configuration is usable.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial backoff must be non-negative, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max backoff (%v) must be >= initial backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0, got %f", c.BackoffFactor)
	}
	return nil
}

// IsRetryable reports whether the given status code is retried.
func (c *RetryConfig) IsRetryable(statusCode int) bool {
	for _, code := range c.RetryableStatuses {
		if code == statusCode {
			return true
		}
	}
	return false
}

// attemptFunc executes a single request attempt.
type attemptFunc func(ctx context.Context, attempt int) (*Response, error)

// executeWithRetry runs fn with exponential backoff, jitter, and Retry-After
// handling.
//
// Retries happen on retryable status codes and on network failures; other
// 4xx responses and credential failures return immediately. The backoff sleep
// is interruptible by context cancellation.
func executeWithRetry(ctx context.Context, config *RetryConfig, fn attemptFunc) (*Response, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		resp, err := fn(ctx, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry, retryAfter := shouldRetry(err, config)
		if !retry || attempt >= config.MaxAttempts {
			return nil, lastErr
		}

		select {
		case <-time.After(backoffDelay(config, attempt, retryAfter)):
		case <-ctx.Done():
			return nil, &NetworkError{
				Message: "request cancelled during retry backoff",
				Cause:   ctx.Err(),
			}
		}
	}

	return nil, lastErr
}

// shouldRetry classifies an attempt error, extracting the server-requested
// delay when one applies.
func shouldRetry(err error, config *RetryConfig) (retry bool, retryAfter time.Duration) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if !config.IsRetryable(apiErr.StatusCode) {
			return false, 0
		}
		return true, apiErr.RetryAfter
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		// A cancelled context is the caller giving up, not a transient fault.
		return !errors.Is(netErr.Cause, context.Canceled), 0
	}

	// Credential failures and anything else unknown are not retried.
	return false, 0
}

// backoffDelay computes the sleep before the next attempt:
// min(InitialBackoff * BackoffFactor^(attempt-1), MaxBackoff), raised to any
// server-requested Retry-After (still capped), plus 0-100ms jitter.
func backoffDelay(config *RetryConfig, attempt int, retryAfter time.Duration) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt-1))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}

	delay := time.Duration(base)
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > config.MaxBackoff {
		delay = config.MaxBackoff
	}

	jitter := time.Duration(rand.Int63n(101)) * time.Millisecond
	return delay + jitter
}
