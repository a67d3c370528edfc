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
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the retry configuration used for outbound API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// StatusError carries an HTTP status so IsRetryable can classify it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.Code)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt-1)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// IsRetryable reports whether err looks transient: timeouts, dropped connections, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe", "eof", "timeout", "temporary failure"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// backoff is base * 2^attempt capped at max, with jitter in [0.5, 1.0).
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	if d > max || d <= 0 {
		d = max
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}
