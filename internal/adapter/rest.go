package adapter

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// restAdapter implements SourceAdapter over a plain GET + JSON body (spec §4.1 "REST").
type restAdapter struct {
	*base
	client *http.Client
}

func newRESTAdapter(cfg domain.SourceConfig, deps Deps) (SourceAdapter, error) {
	return &restAdapter{
		base:   newBase(cfg, deps),
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (r *restAdapter) SourceID() string { return r.cfg.SourceID }

func (r *restAdapter) Connect(ctx context.Context) error    { return nil }
func (r *restAdapter) Disconnect(ctx context.Context) error { return nil }

func (r *restAdapter) Fetch(ctx context.Context) (domain.DataPoint, error) {
	if dp, ok := r.cache.get(r.cfg.Endpoint); ok {
		return dp, nil
	}

	if err := r.limiter.acquire(ctx); err != nil {
		return domain.DataPoint{}, errs.Network("rate limiter wait cancelled", err)
	}

	start := time.Now()
	var dp domain.DataPoint
	var lastErr error

	retryErr := withRetry(ctx, r.cfg.Retry, func() error {
		var fetchErr error
		dp, fetchErr = r.doFetch(ctx)
		lastErr = fetchErr
		return fetchErr
	})

	d := time.Since(start)
	if retryErr != nil {
		r.recordLatency("fetch", d, errs.Classify(lastErr))
		return domain.DataPoint{}, retryErr
	}

	r.recordLatency("fetch", d, "")

	if err := applyValidation(r.cfg.Validation, dp); err != nil {
		return domain.DataPoint{}, err
	}
	applyNormalization(r.cfg.Normalize, &dp)

	r.cache.set(r.cfg.Endpoint, dp)
	return dp, nil
}

func (r *restAdapter) doFetch(ctx context.Context) (domain.DataPoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Endpoint, http.NoBody)
	if err != nil {
		return domain.DataPoint{}, errs.Network("build request", err)
	}
	if err := r.auth.Apply(ctx, req); err != nil {
		return domain.DataPoint{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.DataPoint{}, errs.Network("http request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.DataPoint{}, errs.DataSource("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.DataPoint{}, errs.DataSource("non-2xx response: "+strconv.Itoa(resp.StatusCode), nil)
	}

	return parseRESTBody(r.cfg, body)
}

// parseRESTBody parses a JSON (or bare-primitive, wrapped as {value: body})
// response, optionally extracting a nested field via JSONPath (spec §4.1,
// §9 DOMAIN STACK additions).
func parseRESTBody(cfg domain.SourceConfig, body []byte) (domain.DataPoint, error) {
	dp := domain.DataPoint{
		SourceID:   cfg.SourceID,
		SourceType: domain.SourceREST,
		Timestamp:  time.Now(),
		Metadata:   map[string]interface{}{},
	}

	var result gjson.Result
	if cfg.ValuePath != "" {
		var doc interface{}
		if err := jsonUnmarshal(body, &doc); err != nil {
			return domain.DataPoint{}, errs.DataSource("parse JSON body for jsonpath", err)
		}
		extracted, err := jsonpath.Get(cfg.ValuePath, doc)
		if err != nil {
			return domain.DataPoint{}, errs.DataSource("jsonpath extraction failed", err)
		}
		result = gjson.Parse(toJSONString(extracted))
	} else {
		parsed := gjson.ParseBytes(body)
		if parsed.IsObject() {
			result = parsed.Get("value")
			if !result.Exists() {
				result = parsed
			}
		} else {
			result = parsed
		}
	}

	switch {
	case result.Type == gjson.True || result.Type == gjson.False:
		dp.ValueKind = domain.ValueBoolean
		dp.Boolean = result.Bool()
	case result.Type == gjson.Number:
		dp.ValueKind = domain.ValueNumeric
		dp.Numeric = result.Float()
	case result.Type == gjson.String:
		dp.ValueKind = domain.ValueCategorical
		dp.Categorical = result.String()
	default:
		return domain.DataPoint{}, errs.DataSource("response value has unsupported type", nil)
	}

	return dp, nil
}
