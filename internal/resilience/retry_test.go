package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsWithoutRetryingOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestRetrySucceedsOnLaterAttempt(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 10)
}

func TestNextDelayCapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{MaxDelay: 100 * time.Millisecond, Multiplier: 10}
	assert.Equal(t, 100*time.Millisecond, nextDelay(50*time.Millisecond, cfg))
}

func TestAddJitterZeroReturnsUnchanged(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, addJitter(100*time.Millisecond, 0))
}

func TestAddJitterStaysWithinBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := addJitter(d, 0.2)
		assert.GreaterOrEqual(t, got, d-20*time.Millisecond)
		assert.LessOrEqual(t, got, d+20*time.Millisecond)
	}
}

func TestDefaultRetryConfigValues(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
