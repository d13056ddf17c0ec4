package adapter

import (
	"context"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
	"github.com/greyhatharola/Oracular/internal/resilience"
)

// circuitBreakerAdapter wraps a SourceAdapter so repeated fetch failures trip
// a breaker around it: Closed -> Open after cfg.MaxFailures consecutive
// failures; Open -> HalfOpen on the first call once cfg.Timeout has passed
// since the last failure; HalfOpen -> Closed after cfg.HalfOpenMax
// successful calls, or back to Open on any failure. An open breaker does
// not close on the timeout alone.
type circuitBreakerAdapter struct {
	SourceAdapter
	cb *resilience.CircuitBreaker
}

// WrapWithCircuitBreaker returns a, protected by a circuit breaker built from
// cfg; resilience.SourceCBConfig gives failure_threshold=3 and
// reset_timeout=300s.
func WrapWithCircuitBreaker(a SourceAdapter, cfg resilience.Config) SourceAdapter {
	return &circuitBreakerAdapter{SourceAdapter: a, cb: resilience.New(cfg)}
}

func (c *circuitBreakerAdapter) Fetch(ctx context.Context) (domain.DataPoint, error) {
	var dp domain.DataPoint
	err := c.cb.Execute(ctx, func() error {
		var fetchErr error
		dp, fetchErr = c.SourceAdapter.Fetch(ctx)
		return fetchErr
	})
	if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
		return domain.DataPoint{}, errs.CircuitOpen(err.Error())
	}
	return dp, err
}
