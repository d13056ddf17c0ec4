package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyhatharola/Oracular/internal/domain"
)

func numericPoint(sourceID string, value float64, ts time.Time) domain.DataPoint {
	return domain.DataPoint{
		SourceID:  sourceID,
		ValueKind: domain.ValueNumeric,
		Numeric:   value,
		Timestamp: ts,
	}
}

func TestValidateAcceptsCleanPoint(t *testing.T) {
	p := New(DefaultConfig(), nil)
	res := p.Validate(numericPoint("src-1", 100.0, time.Now()), nil)
	require.True(t, res.Accepted)
}

func TestTemporalStageSkippedBelowMinHistoryPoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistoryPoints = 5
	cfg.RapidChangeThreshold = 0.01
	p := New(cfg, nil)

	base := time.Now()
	// Seed exactly MinHistoryPoints-1 accepted points; the temporal stage
	// must not evaluate on the next point since history is still short.
	for i := 0; i < cfg.MinHistoryPoints-1; i++ {
		res := p.Validate(numericPoint("src-1", 100.0, base.Add(time.Duration(i)*time.Minute)), nil)
		require.True(t, res.Accepted)
	}

	// A large jump right after: temporal stage has MinHistoryPoints-1
	// stored points, one below threshold, so it must stay disabled.
	jump := numericPoint("src-1", 500.0, base.Add(time.Duration(cfg.MinHistoryPoints-1)*time.Minute))
	res := p.Validate(jump, nil)
	assert.True(t, res.Accepted, "temporal stage must be inactive with fewer than min_history_points stored")
}

func TestTemporalStageRejectsRapidChangeAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistoryPoints = 2
	cfg.RapidChangeThreshold = 0.1
	p := New(cfg, nil)

	base := time.Now()
	require.True(t, p.Validate(numericPoint("src-1", 100.0, base), nil).Accepted)
	require.True(t, p.Validate(numericPoint("src-1", 100.0, base.Add(time.Minute)), nil).Accepted)

	// Now history length == MinHistoryPoints, so the stage is active: a
	// 100x jump over one minute is a massive change rate.
	res := p.Validate(numericPoint("src-1", 10_000.0, base.Add(2*time.Minute)), nil)
	assert.False(t, res.Accepted)
	require.NotEmpty(t, res.Findings)
	assert.Equal(t, domain.AnomalyRapidChange, res.Findings[len(res.Findings)-1].Anomaly)
}

func TestCrossSourceStageRejectsDeviatingPoint(t *testing.T) {
	p := New(DefaultConfig(), nil)
	means := map[string]float64{
		"src-a": 100.0, "src-b": 100.1, "src-c": 99.9, "src-d": 100.2, "src-e": 99.8,
		"src-f": 100.05, "src-g": 99.95, "src-h": 100.15, "src-i": 99.85, "src-j": 100.3,
	}

	res := p.Validate(numericPoint("src-outlier", 10_000.0, time.Now()), means)
	assert.False(t, res.Accepted)
}

func TestConsensusStageRequiresMinSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConsensusSources = 3
	p := New(cfg, nil)

	means := map[string]float64{"src-a": 100.0}
	res := p.Validate(numericPoint("src-b", 100.0, time.Now()), means)
	assert.True(t, res.Accepted, "fewer than min_consensus_sources means the consensus stage must be a no-op")
}

func TestCryptographicStageSkippedWithoutSignatureOrKey(t *testing.T) {
	p := New(DefaultConfig(), nil)
	dp := numericPoint("src-1", 100.0, time.Now())
	dp.Signature = []byte("not-checked-without-a-registered-key")

	res := p.Validate(dp, nil)
	assert.True(t, res.Accepted)
}
