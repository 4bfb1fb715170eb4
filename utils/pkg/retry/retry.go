package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config holds retry configuration.
//
// A zero BaseBackoff re-issues failed calls immediately. Retryable overrides
// IsRetryable when set, and OnRetry is called before every re-issue.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Retryable   func(error) bool
	OnRetry     func(attempt int, err error)
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Immediate returns a configuration that re-issues up to maxAttempts times
// without waiting between attempts.
func Immediate(maxAttempts int) Config {
	return Config{MaxAttempts: maxAttempts}
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// configured number of attempts is used up.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr)
			}
			// Zero backoff re-issues at once, but still honours cancellation
			if cfg.BaseBackoff > 0 {
				backoff := calculateBackoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt-1)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		// Don't retry if error is not retryable
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
		// Connection errors are retryable
		msg := err.Error()
		if strings.Contains(msg, "connection") ||
			strings.Contains(msg, "EOF") ||
			strings.Contains(msg, "broken pipe") {
			return true
		}
	}

	// Check for HTTP status codes, e.g. from the identifier service
	type hasStatusCode interface {
		StatusCode() int
	}
	var sc hasStatusCode
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusTooManyRequests, // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout:      // 504
			return true
		}
		// Any other status is an answer, not a transport failure
		return false
	}

	// Check error message for common retryable patterns
	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var retryablePatterns = []string{
	"connection refused",
	"connection closed",
	"connection reset",
	"eof",
	"broken pipe",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
}

// calculateBackoff calculates exponential backoff with jitter.
// Formula: min(base * 2^attempt, max) * (0.5 + rand(0, 0.5))
// Jitter keeps files that failed together from retrying in lockstep.
func calculateBackoff(base, max time.Duration, attempt int) time.Duration {
	// Exponential backoff: base * 2^attempt
	backoff := base * time.Duration(1<<uint(attempt))
	// A zero max leaves the backoff uncapped
	if max > 0 && backoff > max {
		backoff = max
	}
	// Add jitter: multiply by 0.5 to 1.0 (random factor)
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}
