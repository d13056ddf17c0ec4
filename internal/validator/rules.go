// Package validator implements the five-stage validation pipeline (spec
// §4.2): source, cross-source, temporal, consensus, cryptographic.
package validator

import (
	"fmt"

	"github.com/PaesslerAG/gval"

	"github.com/greyhatharola/Oracular/internal/domain"
)

// Stage names a pipeline stage a Rule applies to.
type Stage string

const (
	StageSource        Stage = "source"
	StageCrossSource   Stage = "cross_source"
	StageTemporal      Stage = "temporal"
	StageConsensus     Stage = "consensus"
	StageCryptographic Stage = "cryptographic"
)

// Rule is a source-stage validation rule whose condition is a small fixed
// expression language over (value, timestamp, metadata, rule.parameters) —
// not arbitrary host-language eval (spec §9 "tagged variants").
type Rule struct {
	ID          string
	Stage       Stage
	SourceTypes []domain.SourceKind // empty = applies to all source types
	Severity    domain.Severity
	Condition   string // gval expression; true means the point PASSES
	Parameters  map[string]interface{}
	Enabled     bool

	compiled gval.Evaluable
}

// language is the bounded gval function set rule conditions may call:
// zscore, pct_change, consensus_deviation, plus gval's built-in arithmetic
// and comparison operators (spec §9).
var language = gval.NewLanguage(
	gval.Full(),
	gval.Function("zscore", func(value, mean, stddev float64) float64 {
		if stddev == 0 {
			return 0
		}
		return (value - mean) / stddev
	}),
	gval.Function("pct_change", func(current, previous float64) float64 {
		if previous == 0 {
			return 0
		}
		return (current - previous) / previous
	}),
	gval.Function("consensus_deviation", func(value, median, mad float64) float64 {
		if mad == 0 {
			return 0
		}
		return (value - median) / mad
	}),
)

// Compile parses and caches the rule's gval expression.
func (r *Rule) Compile() error {
	if r.Condition == "" {
		return nil
	}
	ev, err := language.NewEvaluable(r.Condition)
	if err != nil {
		return fmt.Errorf("rule %s: compile condition: %w", r.ID, err)
	}
	r.compiled = ev
	return nil
}

// Evaluate runs the rule's condition against the given scope, returning
// true iff the data point PASSES this rule.
func (r *Rule) Evaluate(scope map[string]interface{}) (bool, error) {
	if r.compiled == nil {
		if err := r.Compile(); err != nil {
			return false, err
		}
	}
	if r.compiled == nil {
		return true, nil
	}
	result, err := r.compiled.EvalBool(nil, scope)
	if err != nil {
		return false, fmt.Errorf("rule %s: evaluate: %w", r.ID, err)
	}
	return result, nil
}

// appliesTo reports whether this rule's source-type filter matches kind.
func (r *Rule) appliesTo(kind domain.SourceKind) bool {
	if len(r.SourceTypes) == 0 {
		return true
	}
	for _, k := range r.SourceTypes {
		if k == kind {
			return true
		}
	}
	return false
}
