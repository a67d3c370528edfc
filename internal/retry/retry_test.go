package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry_Do_SuccessAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_Do_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return &StatusError{Code: http.StatusNotFound}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_Do_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return &StatusError{Code: http.StatusServiceUnavailable}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestRetry_Do_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Second}
	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return errors.New("timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetry_IsRetryable(t *testing.T) {
	t.Parallel()
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(&StatusError{Code: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&StatusError{Code: http.StatusBadGateway}))
	assert.False(t, IsRetryable(&StatusError{Code: http.StatusBadRequest}))
	assert.True(t, IsRetryable(errors.New("unexpected EOF")))
	assert.False(t, IsRetryable(errors.New("invalid json")))
}
