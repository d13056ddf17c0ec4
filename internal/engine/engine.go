// Package engine wires one scheduler tick's full data flow: SourceAdapters
// (fan-out) → Validator → Aggregator → Signer → TransactionManager →
// ContractRegistry → Metrics (spec §2's data-flow diagram). It is the
// concrete implementation of the scheduler.Executor capability interface.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/greyhatharola/Oracular/internal/adapter"
	"github.com/greyhatharola/Oracular/internal/aggregator"
	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
	"github.com/greyhatharola/Oracular/internal/logging"
	"github.com/greyhatharola/Oracular/internal/metrics"
	"github.com/greyhatharola/Oracular/internal/registry"
	"github.com/greyhatharola/Oracular/internal/scheduler"
	"github.com/greyhatharola/Oracular/internal/signer"
	"github.com/greyhatharola/Oracular/internal/txmanager"
	"github.com/greyhatharola/Oracular/internal/validator"
)

// Engine implements scheduler.Executor, gluing together every core
// subsystem for one task's tick.
type Engine struct {
	pipeline  *validator.Pipeline
	registry  *registry.Registry
	txmanager *txmanager.Manager
	signer    *signer.Signer
	metrics   *metrics.Metrics
	logger    *logging.Logger

	aggCfg aggregator.Config

	mu       sync.Mutex
	adapters map[string]adapter.SourceAdapter // sourceID -> connected adapter
	weights  map[string]float64               // sourceID -> reputation weight (spec §4.3)
}

var _ scheduler.Executor = (*Engine)(nil)

// New builds an Engine from its already-constructed collaborators.
func New(pipeline *validator.Pipeline, reg *registry.Registry, tm *txmanager.Manager, sgn *signer.Signer, met *metrics.Metrics, log *logging.Logger, aggCfg aggregator.Config) *Engine {
	return &Engine{
		pipeline:  pipeline,
		registry:  reg,
		txmanager: tm,
		signer:    sgn,
		metrics:   met,
		logger:    log,
		aggCfg:    aggCfg,
		adapters:  make(map[string]adapter.SourceAdapter),
		weights:   make(map[string]float64),
	}
}

// SetWeight assigns a source's reputation weight (spec §4.3's aggregator
// input), updated externally as reputation scoring evolves.
func (e *Engine) SetWeight(sourceID string, weight float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights[sourceID] = weight
}

func (e *Engine) weightFor(sourceID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.weights[sourceID]; ok {
		return w
	}
	return 1.0
}

// Execute runs one tick of task: fan out to every configured source, feed
// each accepted point through the aggregator, sign the result, and submit
// it to every one of the task's contracts (spec §2, §4.1-§4.6).
func (e *Engine) Execute(ctx context.Context, task domain.TaskDefinition) (*scheduler.TickResult, error) {
	perf := make(map[string]time.Duration)
	start := time.Now()

	points, err := e.fanOut(ctx, task)
	perf["fetch"] = time.Since(start)
	if err != nil {
		return nil, err
	}

	validated, findings := e.validateAll(points)
	perf["validate"] = time.Since(start) - perf["fetch"]

	if len(validated) < task.MinSources {
		return nil, errs.Validation(fmt.Sprintf("only %d of %d required sources validated", len(validated), task.MinSources))
	}

	inputs := make([]aggregator.Input, 0, len(validated))
	for _, dp := range validated {
		inputs = append(inputs, aggregator.Input{Point: dp, Weight: e.weightFor(dp.SourceID)})
	}

	aggStart := time.Now()
	agg, err := aggregator.Aggregate(e.aggCfg, inputs, task.MinSources)
	perf["aggregate"] = time.Since(aggStart)
	if err != nil {
		return nil, err
	}

	signStart := time.Now()
	signed, err := e.signer.Sign(agg, time.Now())
	perf["sign"] = time.Since(signStart)
	if err != nil {
		return nil, err
	}

	submitStart := time.Now()
	if err := e.submit(ctx, task, signed); err != nil {
		perf["submit"] = time.Since(submitStart)
		return nil, err
	}
	perf["submit"] = time.Since(submitStart)

	if e.metrics != nil {
		_ = findings
		e.metrics.RecordOracleUpdate(task.ID, firstContractID(task), "success", time.Since(start))
	}

	return &scheduler.TickResult{
		DataPoints:  points,
		Aggregated:  &agg,
		PerfMetrics: perf,
	}, nil
}

// fanOut fetches from every configured source concurrently, tolerating
// individual source failures (spec §4.1 "fetch independently per source").
func (e *Engine) fanOut(ctx context.Context, task domain.TaskDefinition) ([]domain.DataPoint, error) {
	type result struct {
		dp  domain.DataPoint
		err error
	}

	results := make(chan result, len(task.Sources))
	var wg sync.WaitGroup

	for _, cfg := range task.Sources {
		cfg := cfg
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := e.adapterFor(ctx, cfg)
			if err != nil {
				results <- result{err: err}
				return
			}
			dp, err := a.Fetch(ctx)
			results <- result{dp: dp, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var points []domain.DataPoint
	var lastErr error
	for r := range results {
		if r.err != nil {
			lastErr = r.err
			if e.metrics != nil {
				e.metrics.SourceErrors.WithLabelValues("unknown", string(errs.Classify(r.err))).Inc()
			}
			continue
		}
		points = append(points, r.dp)
	}

	if len(points) == 0 && lastErr != nil {
		return nil, errs.Wrap(errs.KindDataSource, "every source fetch failed", lastErr)
	}
	return points, nil
}

// adapterFor returns a connected SourceAdapter for cfg, caching it for
// reuse across ticks (spec §4.1: adapters are long-lived, not per-fetch).
func (e *Engine) adapterFor(ctx context.Context, cfg domain.SourceConfig) (adapter.SourceAdapter, error) {
	e.mu.Lock()
	a, ok := e.adapters[cfg.SourceID]
	e.mu.Unlock()
	if ok {
		return a, nil
	}

	a, err := adapter.New(cfg, adapter.Deps{Logger: e.logger, Metrics: e.metrics})
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.adapters[cfg.SourceID] = a
	e.mu.Unlock()
	return a, nil
}

// validateAll runs every fetched point through the validator pipeline,
// computing cross-source means from the batch itself before each call
// (spec §4.2 stage 2's "all_source_means" input).
func (e *Engine) validateAll(points []domain.DataPoint) ([]domain.DataPoint, []domain.Finding) {
	means := crossSourceMeans(points)

	var accepted []domain.DataPoint
	var allFindings []domain.Finding
	for _, dp := range points {
		res := e.pipeline.Validate(dp, means)
		allFindings = append(allFindings, res.Findings...)
		if res.Accepted {
			accepted = append(accepted, dp)
		}
	}
	return accepted, allFindings
}

func crossSourceMeans(points []domain.DataPoint) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, dp := range points {
		sums[dp.SourceID] += dp.NumericValue()
		counts[dp.SourceID]++
	}
	means := make(map[string]float64, len(sums))
	for id, sum := range sums {
		means[id] = sum / float64(counts[id])
	}
	return means
}

// updateOracleDataSelector is the 4-byte selector for
// updateOracleData(uint256,uint256,bytes) — every oracle contract this
// control plane targets exposes this write surface (spec §6), taking the
// aggregated value, its timestamp, and the signer's detached signature.
var updateOracleDataSelector = crypto.Keccak256([]byte("updateOracleData(uint256,uint256,bytes)"))[:4]

// submit encodes and dispatches the signed value to every contract the task
// names (spec §4.6, §4.7).
func (e *Engine) submit(ctx context.Context, task domain.TaskDefinition, signed domain.SignedValue) error {
	data := encodeUpdateValue(signed)

	var lastErr error
	submitted := 0
	for _, contractID := range task.ContractIDs {
		meta, ok := e.registry.Get(contractID)
		if !ok {
			lastErr = errs.Validation("unknown contract: " + contractID)
			continue
		}
		if meta.Address == domain.ZeroAddress {
			lastErr = errs.Validation("contract " + contractID + " has no deployed address")
			continue
		}

		_, err := e.txmanager.SendTransaction(ctx, txmanager.SendParams{
			ContractID: contractID,
			To:         common.HexToAddress(meta.Address),
			Data:       data,
		})
		if err != nil {
			lastErr = err
			if e.metrics != nil {
				e.metrics.ContractOperationErr.WithLabelValues(contractID, "submit").Inc()
			}
			continue
		}
		submitted++
	}

	if submitted == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// encodeUpdateValue packs (value, timestamp, signature) behind
// updateOracleDataSelector per the standard Solidity ABI encoding for a
// function with a trailing dynamic `bytes` argument: two head words for the
// uint256 args, a third head word holding the byte-offset to the dynamic
// tail, then the tail itself as a length word followed by the signature
// right-padded to a 32-byte boundary (spec §6, §8 scenario 1).
func encodeUpdateValue(signed domain.SignedValue) []byte {
	valueWord := leftPadWord(floatToFixedWord(signed.AggregatedValue.Value))
	tsWord := leftPadWord(new(big.Int).SetInt64(signed.ProducedAt.Unix()).Bytes())

	sig := signed.Signature
	sigLenWord := leftPadWord(new(big.Int).SetInt64(int64(len(sig))).Bytes())
	sigPadded := rightPadTo32(sig)

	const headWords = 3
	tailOffsetWord := leftPadWord(new(big.Int).SetInt64(headWords * 32).Bytes())

	out := make([]byte, 0, 4+3*32+32+len(sigPadded))
	out = append(out, updateOracleDataSelector...)
	out = append(out, valueWord...)
	out = append(out, tsWord...)
	out = append(out, tailOffsetWord...)
	out = append(out, sigLenWord...)
	out = append(out, sigPadded...)
	return out
}

// leftPadWord zero-pads b on the left to a full 32-byte ABI word.
func leftPadWord(b []byte) []byte {
	word := make([]byte, 32)
	copy(word[32-len(b):], b)
	return word
}

// rightPadTo32 zero-pads b on the right to the next 32-byte boundary, as
// ABI-encoded dynamic `bytes` tails require.
func rightPadTo32(b []byte) []byte {
	padded := len(b)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}
	out := make([]byte, padded)
	copy(out, b)
	return out
}

// floatToFixedWord scales a float64 value by 1e18 (an 18-decimal fixed-point
// convention, matching the teacher's on-chain price-feed contracts) into a
// big-endian big.Int byte slice.
func floatToFixedWord(v float64) []byte {
	scaled := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(1e18))
	i, _ := scaled.Int(nil)
	if i.Sign() < 0 {
		i = big.NewInt(0)
	}
	return i.Bytes()
}

func firstContractID(task domain.TaskDefinition) string {
	if len(task.ContractIDs) == 0 {
		return ""
	}
	return task.ContractIDs[0]
}
