package domain

import "time"

// AggregatedValue is the Aggregator's output for one task tick (spec §3, §4.3).
type AggregatedValue struct {
	Value      float64
	Confidence float64
	NumSources int
}

// SignedValue attaches a detached signature to an AggregatedValue (spec §3, §4.4).
type SignedValue struct {
	AggregatedValue AggregatedValue
	Signature       []byte
	ProducedAt      time.Time
}

// Severity grades a validator Finding (spec §9 GLOSSARY).
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Anomaly names the class of deviation a finding reports, where applicable.
type Anomaly string

const (
	AnomalyNone               Anomaly = ""
	AnomalyConsensusDeviation Anomaly = "ConsensusDeviation"
	AnomalyRapidChange        Anomaly = "RapidChange"
	AnomalyPatternBreak       Anomaly = "PatternBreak"
)

// Finding records one validator stage's observation about a DataPoint.
type Finding struct {
	Stage    string
	Severity Severity
	Anomaly  Anomaly
	Message  string
	SourceID string
}

// Rejects reports whether a finding's severity is serious enough to reject
// the owning data point (spec §4.2 "short-circuiting on Critical/High").
func (f Finding) Rejects() bool {
	return f.Severity == SeverityCritical || f.Severity == SeverityHigh
}

// SourceStats holds rolling statistics for one source, recomputed after
// each accepted data point (spec §3).
type SourceStats struct {
	SourceID        string
	Mean            float64
	StdDev          float64
	Min             float64
	Max             float64
	LastUpdate      time.Time
	UpdateFrequency time.Duration
	Confidence      float64
	Count           int
}

// HistoricalPoint is one (timestamp, value) entry in a HistoricalSeries.
type HistoricalPoint struct {
	Timestamp time.Time
	Value     float64
}
