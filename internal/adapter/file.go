package adapter

import (
	"os"
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/tidwall/gjson"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// fileAdapter reads a local POSIX path whose content is JSON or a decimal
// literal (spec §4.1 "File").
type fileAdapter struct {
	*base
}

func newFileAdapter(cfg domain.SourceConfig, deps Deps) (SourceAdapter, error) {
	return &fileAdapter{base: newBase(cfg, deps)}, nil
}

func (f *fileAdapter) SourceID() string { return f.cfg.SourceID }

func (f *fileAdapter) Connect(ctx context.Context) error {
	if _, err := os.Stat(f.cfg.Endpoint); err != nil {
		return errs.DataSource("file does not exist", err)
	}
	return nil
}

func (f *fileAdapter) Disconnect(ctx context.Context) error { return nil }

func (f *fileAdapter) Fetch(ctx context.Context) (domain.DataPoint, error) {
	if dp, ok := f.cache.get(f.cfg.Endpoint); ok {
		return dp, nil
	}

	start := time.Now()
	content, err := os.ReadFile(f.cfg.Endpoint)
	d := time.Since(start)
	if err != nil {
		f.recordLatency("fetch", d, errs.KindDataSource)
		return domain.DataPoint{}, errs.DataSource("read file failed", err)
	}
	f.recordLatency("fetch", d, "")

	dp, err := parseFileContent(f.cfg, content)
	if err != nil {
		return domain.DataPoint{}, err
	}

	if err := applyValidation(f.cfg.Validation, dp); err != nil {
		return domain.DataPoint{}, err
	}
	applyNormalization(f.cfg.Normalize, &dp)

	f.cache.set(f.cfg.Endpoint, dp)
	return dp, nil
}

func parseFileContent(cfg domain.SourceConfig, content []byte) (domain.DataPoint, error) {
	dp := domain.DataPoint{
		SourceID:   cfg.SourceID,
		SourceType: domain.SourceFile,
		Timestamp:  time.Now(),
		Metadata:   map[string]interface{}{},
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return domain.DataPoint{}, errs.DataSource("file is empty", nil)
	}

	if gjson.Valid(trimmed) && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
		parsed := gjson.Parse(trimmed)
		result := parsed
		if parsed.IsObject() {
			if v := parsed.Get("value"); v.Exists() {
				result = v
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
			return domain.DataPoint{}, errs.DataSource("file JSON value has unsupported type", nil)
		}
		return dp, nil
	}

	num, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return domain.DataPoint{}, errs.DataSource("file content is neither JSON nor a decimal literal", err)
	}
	dp.ValueKind = domain.ValueNumeric
	dp.Numeric = num
	return dp, nil
}
