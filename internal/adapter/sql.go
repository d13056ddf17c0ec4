package adapter

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// sqlAdapter executes a configured query against a Postgres connection
// pool and wraps the first column of the first row as the value (spec
// §4.1 "SQL", §6 driver connection URL shape).
type sqlAdapter struct {
	*base
	db *sqlx.DB
}

func newSQLAdapter(cfg domain.SourceConfig, deps Deps) (SourceAdapter, error) {
	return &sqlAdapter{base: newBase(cfg, deps)}, nil
}

func (s *sqlAdapter) SourceID() string { return s.cfg.SourceID }

func (s *sqlAdapter) Connect(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", s.cfg.Endpoint)
	if err != nil {
		return errs.Network("sql connect failed", err)
	}
	s.db = db
	return nil
}

func (s *sqlAdapter) Disconnect(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlAdapter) Fetch(ctx context.Context) (domain.DataPoint, error) {
	if s.db == nil {
		return domain.DataPoint{}, errs.Resource("sql adapter not connected", nil)
	}

	if dp, ok := s.cache.get(s.cfg.Endpoint); ok {
		return dp, nil
	}

	if err := s.limiter.acquire(ctx); err != nil {
		return domain.DataPoint{}, errs.Network("rate limiter wait cancelled", err)
	}

	start := time.Now()
	var dp domain.DataPoint
	var lastErr error

	retryErr := withRetry(ctx, s.cfg.Retry, func() error {
		queryCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		rows, err := s.db.QueryxContext(queryCtx, s.cfg.Query)
		if err != nil {
			lastErr = errs.DataSource("sql query failed", err)
			return lastErr
		}
		defer rows.Close()

		if !rows.Next() {
			lastErr = errs.DataSource("sql query returned no rows", nil)
			return lastErr
		}

		cols, err := rows.SliceScan()
		if err != nil {
			lastErr = errs.DataSource("sql row scan failed", err)
			return lastErr
		}
		if len(cols) == 0 {
			lastErr = errs.DataSource("sql row has no columns", nil)
			return lastErr
		}

		dp = domain.DataPoint{
			SourceID:   s.cfg.SourceID,
			SourceType: domain.SourceSQL,
			Timestamp:  time.Now(),
			Metadata:   map[string]interface{}{},
		}
		switch v := cols[0].(type) {
		case float64:
			dp.ValueKind = domain.ValueNumeric
			dp.Numeric = v
		case int64:
			dp.ValueKind = domain.ValueNumeric
			dp.Numeric = float64(v)
		case bool:
			dp.ValueKind = domain.ValueBoolean
			dp.Boolean = v
		case []byte:
			dp.ValueKind = domain.ValueCategorical
			dp.Categorical = string(v)
		case string:
			dp.ValueKind = domain.ValueCategorical
			dp.Categorical = v
		default:
			lastErr = errs.DataSource("sql column has unsupported type", nil)
			return lastErr
		}
		return nil
	})

	d := time.Since(start)
	if retryErr != nil {
		s.recordLatency("fetch", d, errs.Classify(lastErr))
		return domain.DataPoint{}, retryErr
	}
	s.recordLatency("fetch", d, "")

	if err := applyValidation(s.cfg.Validation, dp); err != nil {
		return domain.DataPoint{}, err
	}
	applyNormalization(s.cfg.Normalize, &dp)

	s.cache.set(s.cfg.Endpoint, dp)
	return dp, nil
}
