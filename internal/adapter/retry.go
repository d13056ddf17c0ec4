package adapter

import (
	"context"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/resilience"
)

// withRetry wraps a single fetch attempt in the per-request retry policy
// (spec §4.1 "Per-request retry"). Rate limit acquisition happens once per
// fetch, outside this call, not once per retry attempt.
func withRetry(ctx context.Context, cfg domain.RetryConfig, fn func() error) error {
	rc := resilience.RetryConfig{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		Multiplier:   cfg.Multiplier,
		MaxDelay:     cfg.InitialDelay * 20,
	}
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 3
	}
	if rc.Multiplier <= 0 {
		rc.Multiplier = 2
	}
	return resilience.Retry(ctx, rc, fn)
}
