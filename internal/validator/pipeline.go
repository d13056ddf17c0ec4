package validator

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/greyhatharola/Oracular/internal/domain"
)

// Config configures the pipeline's cross-stage thresholds (spec §6
// "Validator config").
type Config struct {
	HistoryWindow         time.Duration
	MinHistoryPoints      int
	ConfidenceThreshold   float64
	MaxSourceDeviation    float64
	RapidChangeThreshold  float64
	MinConsensusSources   int
}

// DefaultConfig returns the spec's stated defaults where explicit.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:        24 * time.Hour,
		MinHistoryPoints:     5,
		ConfidenceThreshold:  0.5,
		MaxSourceDeviation:   3,
		RapidChangeThreshold: 0.1,
		MinConsensusSources:  3,
	}
}

// Pipeline owns rules, historical_data, source_stats, source_public_keys,
// and findings — all partitioned by source_id (spec §4.2 "State").
type Pipeline struct {
	cfg   Config
	rules []*Rule
	stats *statsStore

	mu   sync.Mutex
	keys map[string]sourcePublicKey

	findingsMu sync.Mutex
	findings   []domain.Finding
}

type sourcePublicKey struct {
	key    []byte
	scheme string
}

// New builds a Pipeline with the given rules and config.
func New(cfg Config, rules []*Rule) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		rules: rules,
		stats: newStatsStore(cfg.HistoryWindow, cfg.MinHistoryPoints),
		keys:  make(map[string]sourcePublicKey),
	}
}

// RegisterPublicKey registers a source's signing key for stage 5
// (cryptographic) verification.
func (p *Pipeline) RegisterPublicKey(sourceID string, key []byte, scheme string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[sourceID] = sourcePublicKey{key: key, scheme: scheme}
}

// Result is the pipeline's verdict for one data point.
type Result struct {
	Accepted bool
	Findings []domain.Finding
}

// Validate runs all five stages against dp, short-circuiting on the first
// Critical/High finding (spec §4.2). On acceptance it inserts into the
// source's HistoricalSeries and recomputes SourceStats.
func (p *Pipeline) Validate(dp domain.DataPoint, allSourceMeans map[string]float64) Result {
	var findings []domain.Finding

	if f, ok := p.stageSource(dp); ok {
		findings = append(findings, f)
		if f.Rejects() {
			return p.reject(dp, findings)
		}
	}

	if f, ok := p.stageCrossSource(dp, allSourceMeans); ok {
		findings = append(findings, f)
		if f.Rejects() {
			return p.reject(dp, findings)
		}
	}

	if f, ok := p.stageTemporal(dp); ok {
		findings = append(findings, f)
		if f.Rejects() {
			return p.reject(dp, findings)
		}
	}

	if f, ok := p.stageConsensus(dp, allSourceMeans); ok {
		findings = append(findings, f)
		if f.Rejects() {
			return p.reject(dp, findings)
		}
	}

	if f, ok := p.stageCryptographic(dp); ok {
		findings = append(findings, f)
		if f.Rejects() {
			return p.reject(dp, findings)
		}
	}

	p.stats.record(dp.SourceID, dp.Timestamp, dp.NumericValue())
	p.recordFindings(findings)
	return Result{Accepted: true, Findings: findings}
}

func (p *Pipeline) reject(dp domain.DataPoint, findings []domain.Finding) Result {
	p.recordFindings(findings)
	return Result{Accepted: false, Findings: findings}
}

func (p *Pipeline) recordFindings(findings []domain.Finding) {
	if len(findings) == 0 {
		return
	}
	p.findingsMu.Lock()
	defer p.findingsMu.Unlock()
	p.findings = append(p.findings, findings...)
}

// stageSource evaluates every enabled rule whose stage=Source and whose
// source-type filter matches (spec §4.2 stage 1).
func (p *Pipeline) stageSource(dp domain.DataPoint) (domain.Finding, bool) {
	scope := map[string]interface{}{
		"value":     dp.NumericValue(),
		"timestamp": dp.Timestamp.Unix(),
		"metadata":  dp.Metadata,
	}

	for _, rule := range p.rules {
		if !rule.Enabled || rule.Stage != StageSource || !rule.appliesTo(dp.SourceType) {
			continue
		}
		ruleScope := map[string]interface{}{}
		for k, v := range scope {
			ruleScope[k] = v
		}
		for k, v := range rule.Parameters {
			ruleScope[k] = v
		}

		ok, err := rule.Evaluate(ruleScope)
		if err != nil || !ok {
			return domain.Finding{
				Stage:    string(StageSource),
				Severity: rule.Severity,
				Message:  fmt.Sprintf("rule %s failed", rule.ID),
				SourceID: dp.SourceID,
			}, true
		}
	}
	return domain.Finding{}, false
}

// stageCrossSource computes mean/stddev across per-source means (incl.
// current) and flags deviation beyond 3 sigma (spec §4.2 stage 2).
func (p *Pipeline) stageCrossSource(dp domain.DataPoint, allMeans map[string]float64) (domain.Finding, bool) {
	means := collectMeans(allMeans, dp.SourceID, dp.NumericValue())
	if len(means) < 2 {
		return domain.Finding{}, false
	}

	mean, stddev := meanStdDev(means)
	if stddev <= 0 {
		return domain.Finding{}, false
	}

	dev := math.Abs(dp.NumericValue()-mean) / stddev
	if dev > 3 {
		return domain.Finding{
			Stage:    string(StageCrossSource),
			Severity: domain.SeverityHigh,
			Anomaly:  domain.AnomalyConsensusDeviation,
			Message:  fmt.Sprintf("cross-source deviation %.2f sigma", dev),
			SourceID: dp.SourceID,
		}, true
	}
	return domain.Finding{}, false
}

// stageTemporal requires >= min_history_points stored for this source,
// then checks per-step change rate and historical volatility (spec §4.2
// stage 3).
func (p *Pipeline) stageTemporal(dp domain.DataPoint) (domain.Finding, bool) {
	st := p.stats.state(dp.SourceID)
	st.mu.Lock()
	series := append([]domain.HistoricalPoint(nil), st.series...)
	st.mu.Unlock()

	if len(series) < p.cfg.MinHistoryPoints {
		return domain.Finding{}, false
	}

	prev := series[len(series)-1]
	deltaT := dp.Timestamp.Sub(prev.Timestamp).Seconds()
	if deltaT > 0 && prev.Value != 0 {
		changeRate := math.Abs(dp.NumericValue()-prev.Value) / (math.Abs(prev.Value) * deltaT)
		if changeRate > p.cfg.RapidChangeThreshold {
			return domain.Finding{
				Stage:    string(StageTemporal),
				Severity: domain.SeverityHigh,
				Anomaly:  domain.AnomalyRapidChange,
				Message:  fmt.Sprintf("rapid change rate %.4f exceeds threshold %.4f", changeRate, p.cfg.RapidChangeThreshold),
				SourceID: dp.SourceID,
			}, true
		}
	}

	if len(series) >= 30 {
		window := series[len(series)-30:]
		var logDeltas []float64
		for i := 1; i < len(window); i++ {
			if window[i-1].Value > 0 && window[i].Value > 0 {
				logDeltas = append(logDeltas, math.Log(window[i].Value/window[i-1].Value))
			}
		}
		if len(logDeltas) > 1 {
			_, sigma := meanStdDev(logDeltas)
			last := window[len(window)-1]
			if sigma > 0 && last.Value > 0 && dp.NumericValue() > 0 {
				logMove := math.Abs(math.Log(dp.NumericValue() / last.Value))
				if logMove > 3*sigma {
					return domain.Finding{
						Stage:    string(StageTemporal),
						Severity: domain.SeverityMedium,
						Anomaly:  domain.AnomalyPatternBreak,
						Message:  fmt.Sprintf("log-move %.4f exceeds 3 sigma (%.4f)", logMove, 3*sigma),
						SourceID: dp.SourceID,
					}, true
				}
			}
		}
	}

	return domain.Finding{}, false
}

// stageConsensus requires >= min_consensus_sources source means, then
// flags deviation from the median beyond 3 MAD (spec §4.2 stage 4).
func (p *Pipeline) stageConsensus(dp domain.DataPoint, allMeans map[string]float64) (domain.Finding, bool) {
	means := collectMeans(allMeans, dp.SourceID, dp.NumericValue())
	if len(means) < p.cfg.MinConsensusSources {
		return domain.Finding{}, false
	}

	median := medianOf(means)
	mad := medianAbsoluteDeviation(means, median)
	if mad <= 0 {
		return domain.Finding{}, false
	}

	dev := math.Abs(dp.NumericValue()-median) / mad
	if dev > 3 {
		return domain.Finding{
			Stage:    string(StageConsensus),
			Severity: domain.SeverityHigh,
			Anomaly:  domain.AnomalyConsensusDeviation,
			Message:  fmt.Sprintf("consensus deviation %.2f MAD", dev),
			SourceID: dp.SourceID,
		}, true
	}
	return domain.Finding{}, false
}

// stageCryptographic verifies a supplied signature over the canonical
// message "{source_id}:{value}:{ts_iso}" when a public key is registered
// for the source (spec §4.2 stage 5).
func (p *Pipeline) stageCryptographic(dp domain.DataPoint) (domain.Finding, bool) {
	if len(dp.Signature) == 0 {
		return domain.Finding{}, false
	}

	p.mu.Lock()
	pk, ok := p.keys[dp.SourceID]
	p.mu.Unlock()
	if !ok {
		return domain.Finding{}, false
	}

	msg := canonicalMessage(dp.SourceID, dp.NumericValue(), dp.Timestamp)
	if !verifySignature(pk, msg, dp.Signature) {
		return domain.Finding{
			Stage:    string(StageCryptographic),
			Severity: domain.SeverityCritical,
			Message:  "signature verification failed",
			SourceID: dp.SourceID,
		}, true
	}
	return domain.Finding{}, false
}

func canonicalMessage(sourceID string, value float64, ts time.Time) []byte {
	s := fmt.Sprintf("%s:%v:%s", sourceID, value, ts.UTC().Format(time.RFC3339))
	sum := sha3.Sum256([]byte(s))
	return sum[:]
}

func verifySignature(pk sourcePublicKey, msg, sig []byte) bool {
	return verifyRSAPSS(pk.key, msg, sig)
}

func collectMeans(allMeans map[string]float64, currentSourceID string, currentValue float64) []float64 {
	means := make([]float64, 0, len(allMeans)+1)
	for id, m := range allMeans {
		if id == currentSourceID {
			continue
		}
		means = append(means, m)
	}
	means = append(means, currentValue)
	return means
}

func meanStdDev(values []float64) (mean, stddev float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func medianAbsoluteDeviation(values []float64, median float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - median)
	}
	return medianOf(devs)
}
