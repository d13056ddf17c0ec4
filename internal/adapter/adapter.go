// Package adapter implements the SourceAdapter capability contract and its
// four concrete variants (REST, WebSocket, SQL, File) (spec §4.1, §9
// "Polymorphism via capabilities"). Every variant embeds the same base
// (rate limiter, endpoint cache, authenticator), but not every variant
// uses all of it: REST applies rate limiting, the endpoint cache, auth and
// per-request retry; SQL applies rate limiting, the endpoint cache and
// retry, with no request-level auth; File uses the endpoint cache only;
// WebSocket returns the latest value its receiver stored and applies none
// of rate limiting, caching, auth or retry.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
	"github.com/greyhatharola/Oracular/internal/logging"
	"github.com/greyhatharola/Oracular/internal/metrics"
)

// SourceAdapter is the capability set every concrete variant satisfies
// (spec §4.1 "Contract"). fetch() is idempotent within cache_ttl.
type SourceAdapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Fetch(ctx context.Context) (domain.DataPoint, error)
	SourceID() string
}

// Factory constructs a SourceAdapter for a SourceConfig's Kind.
type Factory func(cfg domain.SourceConfig, deps Deps) (SourceAdapter, error)

// Deps bundles the ambient collaborators every adapter variant needs.
type Deps struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

var registry = map[domain.SourceKind]Factory{}

func init() {
	registry[domain.SourceREST] = newRESTAdapter
	registry[domain.SourceWS] = newWebSocketAdapter
	registry[domain.SourceSQL] = newSQLAdapter
	registry[domain.SourceFile] = newFileAdapter
}

// New builds the concrete SourceAdapter registered for cfg.Kind.
func New(cfg domain.SourceConfig, deps Deps) (SourceAdapter, error) {
	factory, ok := registry[cfg.Kind]
	if !ok {
		return nil, errs.Validation(fmt.Sprintf("unknown source kind %q", cfg.Kind))
	}
	return factory(cfg, deps)
}

// base holds the shared machinery (rate limiter, cache, retry, metrics)
// every concrete adapter embeds, composed rather than inherited per the
// capability-set design (spec §9).
type base struct {
	cfg     domain.SourceConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	limiter *windowLimiter
	cache   *endpointCache
	auth    *authenticator
}

func newBase(cfg domain.SourceConfig, deps Deps) *base {
	return &base{
		cfg:     cfg,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		limiter: newWindowLimiter(cfg.RateLimit),
		cache:   newEndpointCache(cfg.CacheTTL),
		auth:    newAuthenticator(cfg.Auth),
	}
}

func (b *base) recordLatency(op string, d time.Duration, errKind errs.Kind) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordSourceFetch(b.cfg.SourceID, op, string(b.cfg.Kind), d, string(errKind))
}

// applyValidation runs the adapter-local tagged validation rules (spec
// §4.1 "Validation rules inside an adapter") — distinct from, and prior
// to, the Validator pipeline's stages.
func applyValidation(rules []domain.AdapterValidationRule, dp domain.DataPoint) error {
	for _, rule := range rules {
		switch rule.Kind {
		case domain.ValidationNumeric:
			v := dp.NumericValue()
			if v < rule.Min || v > rule.Max {
				return errs.Validation(fmt.Sprintf("value %v outside [%v,%v]", v, rule.Min, rule.Max))
			}
		case domain.ValidationCategorical:
			ok := false
			for _, a := range rule.Allowed {
				if a == dp.Categorical {
					ok = true
					break
				}
			}
			if !ok {
				return errs.Validation(fmt.Sprintf("value %q not in allowed set", dp.Categorical))
			}
		case domain.ValidationBinary:
			if dp.ValueKind != domain.ValueBoolean {
				return errs.Validation("expected boolean value")
			}
		}
	}
	return nil
}

// applyNormalization runs the adapter-local tagged normalization rules
// (spec §4.1 "Normalization rules").
func applyNormalization(rules []domain.AdapterNormalizationRule, dp *domain.DataPoint) {
	for _, rule := range rules {
		switch rule.Kind {
		case domain.NormalizationNumeric:
			v := dp.Numeric * rule.Scale
			mult := pow10(rule.Decimals)
			dp.Numeric = roundTo(v, mult)
		case domain.NormalizationCategorical:
			if mapped, ok := rule.Mapping[dp.Categorical]; ok {
				dp.Categorical = mapped
			}
		}
	}
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func roundTo(v, mult float64) float64 {
	scaled := v * mult
	if scaled >= 0 {
		return float64(int64(scaled+0.5)) / mult
	}
	return float64(int64(scaled-0.5)) / mult
}
