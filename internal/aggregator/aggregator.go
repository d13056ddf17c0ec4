// Package aggregator combines validated data points into one signed numeric
// value via outlier rejection and reputation-weighted mean (spec §4.3).
package aggregator

import (
	"math"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// Config tunes the aggregator's thresholds.
type Config struct {
	OutlierThreshold    float64
	ConfidenceThreshold float64
}

// DefaultConfig returns spec §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{OutlierThreshold: 2.0, ConfidenceThreshold: 0.5}
}

// Input pairs each accepted DataPoint with its reputation weight ([0,1]).
type Input struct {
	Point  domain.DataPoint
	Weight float64
}

// Aggregate runs the outlier filter, weighted mean, and confidence scoring
// over one task tick's accepted points (spec §4.3 "Algorithm").
func Aggregate(cfg Config, inputs []Input, minSources int) (domain.AggregatedValue, error) {
	survivors := filterOutliers(inputs, cfg.OutlierThreshold)
	if len(survivors) == 0 {
		return domain.AggregatedValue{}, errs.Validation("InsufficientDataAfterOutlierRemoval")
	}

	value, avgWeight, variance := weightedMean(survivors)
	n := len(survivors)
	confidence := (1 / (1 + variance)) * avgWeight * math.Min(1, float64(n)/5)

	agg := domain.AggregatedValue{
		Value:      value,
		Confidence: confidence,
		NumSources: n,
	}

	if n < minSources || confidence < cfg.ConfidenceThreshold {
		return agg, errs.Validation("LowConfidence")
	}
	return agg, nil
}

// filterOutliers computes mean/std over numeric values and keeps points
// with |z| < threshold. Fewer than two points skips the filter entirely
// (spec §4.3 step 1).
func filterOutliers(inputs []Input, threshold float64) []Input {
	if len(inputs) < 2 {
		return inputs
	}

	values := make([]float64, len(inputs))
	for i, in := range inputs {
		values[i] = in.Point.NumericValue()
	}

	mean, stddev := meanStdDev(values)
	if stddev == 0 {
		return inputs
	}

	survivors := make([]Input, 0, len(inputs))
	for i, in := range inputs {
		z := math.Abs(values[i]-mean) / stddev
		if z < threshold {
			survivors = append(survivors, in)
		}
	}
	return survivors
}

// weightedMean returns Σvᵢwᵢ/Σwᵢ, the average weight, and the population
// variance (squared deviations from the weighted mean, divided by n) of the
// surviving values (used for confidence scoring).
func weightedMean(inputs []Input) (value, avgWeight, variance float64) {
	var weightedSum, weightSum float64
	values := make([]float64, len(inputs))
	for i, in := range inputs {
		v := in.Point.NumericValue()
		values[i] = v
		weightedSum += v * in.Weight
		weightSum += in.Weight
	}
	if weightSum == 0 {
		weightSum = float64(len(inputs))
		weightedSum = sum(values)
	}
	value = weightedSum / weightSum
	avgWeight = weightSum / float64(len(inputs))

	var varSum float64
	for _, v := range values {
		d := v - value
		varSum += d * d
	}
	if len(values) > 0 {
		variance = varSum / float64(len(values))
	}
	return value, avgWeight, variance
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func meanStdDev(values []float64) (mean, stddev float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	mean = sum(values) / float64(n)
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}
