package validator

import (
	"math"
	"sync"
	"time"

	"github.com/greyhatharola/Oracular/internal/domain"
)

// sourceState bundles one source_id's HistoricalSeries and SourceStats
// behind a single mutex, since §5 requires writes for the same source_id
// to be totally ordered while different source_ids stay independent.
type sourceState struct {
	mu         sync.Mutex
	series     []domain.HistoricalPoint
	stats      domain.SourceStats
	publicKey  []byte
	sigScheme  string
}

// statsStore partitions sourceState by source_id (spec §3 "partitioned by
// source_id; concurrent writers for the same source_id must serialize").
type statsStore struct {
	mu             sync.RWMutex
	bySource       map[string]*sourceState
	historyWindow  time.Duration
	minHistoryPts  int
}

func newStatsStore(historyWindow time.Duration, minHistoryPoints int) *statsStore {
	return &statsStore{
		bySource:      make(map[string]*sourceState),
		historyWindow: historyWindow,
		minHistoryPts: minHistoryPoints,
	}
}

func (s *statsStore) state(sourceID string) *sourceState {
	s.mu.RLock()
	st, ok := s.bySource[sourceID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.bySource[sourceID]; ok {
		return st
	}
	st = &sourceState{}
	s.bySource[sourceID] = st
	return st
}

// record inserts (ts,value) into the source's HistoricalSeries, drops
// entries older than history_window, and recomputes SourceStats (spec
// §4.2 "After acceptance... recompute SourceStats").
func (s *statsStore) record(sourceID string, ts time.Time, value float64) domain.SourceStats {
	st := s.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.series = append(st.series, domain.HistoricalPoint{Timestamp: ts, Value: value})
	// Retention is relative to wall-clock now, not the inserted point's own
	// timestamp — an upstream feed whose timestamps lag real time must still
	// have its history aged out on the same clock every other source uses.
	cutoff := time.Now().Add(-s.historyWindow)
	kept := st.series[:0]
	for _, p := range st.series {
		if !p.Timestamp.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	st.series = kept

	st.stats = computeStats(sourceID, st.series)
	return st.stats
}

func computeStats(sourceID string, series []domain.HistoricalPoint) domain.SourceStats {
	n := len(series)
	if n == 0 {
		return domain.SourceStats{SourceID: sourceID}
	}

	var sum float64
	min := series[0].Value
	max := series[0].Value
	for _, p := range series {
		sum += p.Value
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
	}
	mean := sum / float64(n)

	var variance float64
	for _, p := range series {
		d := p.Value - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	var avgInterval time.Duration
	if n >= 2 {
		total := series[n-1].Timestamp.Sub(series[0].Timestamp)
		avgInterval = total / time.Duration(n-1)
	}

	last := series[n-1]
	recency := recencyScore(last.Timestamp)
	consistency := consistencyScore(stddev, mean)
	regularity := regularityScore(series)
	confidence := (recency + consistency + regularity) / 3

	return domain.SourceStats{
		SourceID:        sourceID,
		Mean:            mean,
		StdDev:          stddev,
		Min:             min,
		Max:             max,
		LastUpdate:      last.Timestamp,
		UpdateFrequency: avgInterval,
		Confidence:      confidence,
		Count:           n,
	}
}

func recencyScore(last time.Time) float64 {
	age := time.Since(last)
	if age <= 0 {
		return 1
	}
	// Decays to ~0 over an hour; a fresh point scores near 1.
	score := 1 - age.Minutes()/60
	if score < 0 {
		return 0
	}
	return score
}

func consistencyScore(stddev, mean float64) float64 {
	if mean == 0 {
		return 1
	}
	cv := math.Abs(stddev / mean)
	score := 1 - cv
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func regularityScore(series []domain.HistoricalPoint) float64 {
	n := len(series)
	if n < 3 {
		return 1
	}
	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		intervals = append(intervals, series[i].Timestamp.Sub(series[i-1].Timestamp).Seconds())
	}
	var sum float64
	for _, v := range intervals {
		sum += v
	}
	mean := sum / float64(len(intervals))
	if mean == 0 {
		return 1
	}
	var variance float64
	for _, v := range intervals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(intervals))
	cv := math.Sqrt(variance) / mean
	score := 1 - cv
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
