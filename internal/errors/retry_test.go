package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}

	// When: retrying with 3 retries
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: it succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return errors.New("always")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	vec, err := RetryWithResult(context.Background(), fastRetry(2), func() ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, EmbeddingError("busy", nil)
		}
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestRetryWithResult_RetryIfStopsOnPermanentError(t *testing.T) {
	// Given: a config that only retries retryable errors
	cfg := fastRetry(5)
	cfg.RetryIf = IsRetryable

	// When: the function returns a non-retryable error
	attempts := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		return 0, ValidationError("bad input", nil)
	})

	// Then: no retries happen and the error is returned unchanged
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
}

func TestRetry_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddingRetryConfig(t *testing.T) {
	cfg := EmbeddingRetryConfig(2)

	assert.Equal(t, 2, cfg.MaxRetries)
	assert.True(t, cfg.Jitter)
	require.NotNil(t, cfg.RetryIf)
	assert.True(t, cfg.RetryIf(EmbeddingError("x", nil)))
	assert.False(t, cfg.RetryIf(ExtractionError("p", "x", nil)))
}
