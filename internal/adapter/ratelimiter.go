package adapter

import (
	"context"
	"time"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/ratelimit"
)

// windowLimiter enforces a SourceConfig's (calls, period) contract with
// FIFO reclaim semantics — acquired once per fetch, not per retry attempt
// (spec §4.1).
type windowLimiter struct {
	limiter *ratelimit.WindowLimiter
}

func newWindowLimiter(cfg domain.RateLimitConfig) *windowLimiter {
	calls := cfg.Calls
	period := cfg.Period
	if calls <= 0 {
		calls = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &windowLimiter{limiter: ratelimit.NewWindowLimiter(calls, period)}
}

// acquire blocks until a slot is free, honoring ctx cancellation.
func (w *windowLimiter) acquire(ctx context.Context) error {
	for {
		now := time.Now()
		if w.limiter.AllowAt(now) {
			return nil
		}
		wait := w.limiter.RetryAfter(now)
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
