package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithBackoff_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoff_ExhaustsRetries(t *testing.T) {
	cause := errors.New("persistent failure")
	calls := 0
	err := WithBackoff(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.ErrorIs(t, err, cause, "the last error must stay unwrappable")
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestWithBackoff_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithBackoff(ctx, fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestWithBackoff_CancelledDuringWait(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Hour, // only cancellation can end the wait
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WithBackoff(ctx, cfg, func() error { return errors.New("transient") })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("backoff did not abort on cancellation")
	}
}

func TestWithBackoff_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastRetryConfig(0), func() error {
		calls++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
