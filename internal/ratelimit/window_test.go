package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimiterAllowsUpToCallsThenBlocks(t *testing.T) {
	w := NewWindowLimiter(3, time.Minute)
	base := time.Now()

	assert.True(t, w.AllowAt(base))
	assert.True(t, w.AllowAt(base))
	assert.True(t, w.AllowAt(base))
	assert.False(t, w.AllowAt(base), "the 4th call within the period must be rejected")
}

func TestWindowLimiterReclaimsExactlyAtPeriodBoundary(t *testing.T) {
	w := NewWindowLimiter(1, time.Minute)
	base := time.Now()

	assert.True(t, w.AllowAt(base))
	assert.False(t, w.AllowAt(base.Add(59*time.Second)), "still within the window, must be rejected")

	// The oldest call is exactly `period` old: the slot must be reclaimed.
	assert.True(t, w.AllowAt(base.Add(time.Minute)), "a call exactly one period later must be admitted")
}

func TestWindowLimiterRetryAfterZeroWhenSlotFree(t *testing.T) {
	w := NewWindowLimiter(2, time.Minute)
	base := time.Now()
	assert.Equal(t, time.Duration(0), w.RetryAfter(base))
}

func TestWindowLimiterRetryAfterReturnsWaitUntilReclaim(t *testing.T) {
	w := NewWindowLimiter(1, time.Minute)
	base := time.Now()
	assert.True(t, w.AllowAt(base))

	wait := w.RetryAfter(base.Add(10 * time.Second))
	assert.InDelta(t, 50*time.Second, wait, float64(time.Second))
}

func TestWindowLimiterDefaultsInvalidCallsToOne(t *testing.T) {
	w := NewWindowLimiter(0, time.Minute)
	base := time.Now()
	assert.True(t, w.AllowAt(base))
	assert.False(t, w.AllowAt(base))
}
