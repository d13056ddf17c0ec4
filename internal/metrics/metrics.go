// Package metrics provides the Prometheus metrics sink shared by every
// component (spec §4.8, §6).
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Metrics holds the collectors named in spec §6's metrics namespace, plus
// the ambient HTTP/service series the teacher's infrastructure/metrics
// registers for every service.
type Metrics struct {
	// Counters
	OracleUpdates         *prometheus.CounterVec
	SourceErrors          *prometheus.CounterVec
	TaskExecutions        *prometheus.CounterVec
	ContractOperationErr  *prometheus.CounterVec
	TransactionsByStatus  *prometheus.CounterVec

	// Histograms
	OracleUpdateDuration      *prometheus.HistogramVec
	SourceLatency             *prometheus.HistogramVec
	TaskDuration              *prometheus.HistogramVec
	BlockchainOperationLat    *prometheus.HistogramVec

	// Gauges
	SystemMemory           prometheus.Gauge
	SystemCPU              prometheus.Gauge
	PendingTransactions    prometheus.Gauge
	CurrentBlockNumber     prometheus.Gauge
	ContractSecurityScore  *prometheus.GaugeVec
	ServiceInfo            *prometheus.GaugeVec
}

// New creates and registers a Metrics instance against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom registerer.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		OracleUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_updates_total",
			Help: "Total number of oracle value updates attempted",
		}, []string{"task_id", "contract_id", "status"}),

		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "source_errors_total",
			Help: "Total number of source adapter errors",
		}, []string{"source_id", "error_kind"}),

		TaskExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_executions_total",
			Help: "Total number of task executions by terminal status",
		}, []string{"task_id", "status"}),

		ContractOperationErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contract_operation_error_total",
			Help: "Total number of contract operation errors",
		}, []string{"contract_id", "operation"}),

		TransactionsByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Total number of submitted transactions by terminal or transitional status",
		}, []string{"status"}),

		OracleUpdateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_update_duration_seconds",
			Help:    "Duration of end-to-end oracle update ticks",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		}, []string{"task_id"}),

		SourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "source_latency_seconds",
			Help:    "Source adapter fetch latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"source_id", "op", "kind"}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Duration of a task execution attempt",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"task_id", "priority"}),

		BlockchainOperationLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blockchain_operation_duration_seconds",
			Help:    "Duration of blockchain RPC operations",
			Buckets: []float64{.05, .1, .5, 1, 2, 5, 10, 30},
		}, []string{"operation", "status"}),

		SystemMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_used_percent",
			Help: "System memory utilization percentage",
		}),
		SystemCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_used_percent",
			Help: "System CPU utilization percentage",
		}),
		PendingTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_transactions",
			Help: "Current number of pending on-chain transactions",
		}),
		CurrentBlockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "current_block_number",
			Help: "Latest known block number on the target chain",
		}),
		ContractSecurityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "contract_security_score",
			Help: "Reported security score for a registered contract",
		}, []string{"contract_id"}),
		ServiceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "service_info",
			Help: "Service build information",
		}, []string{"service", "version"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.OracleUpdates, m.SourceErrors, m.TaskExecutions, m.ContractOperationErr, m.TransactionsByStatus,
			m.OracleUpdateDuration, m.SourceLatency, m.TaskDuration, m.BlockchainOperationLat,
			m.SystemMemory, m.SystemCPU, m.PendingTransactions, m.CurrentBlockNumber,
			m.ContractSecurityScore, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)
	return m
}

// RecordSourceFetch records a source adapter fetch's latency and any error.
func (m *Metrics) RecordSourceFetch(sourceID, op, kind string, d time.Duration, errKind string) {
	m.SourceLatency.WithLabelValues(sourceID, op, kind).Observe(d.Seconds())
	if errKind != "" {
		m.SourceErrors.WithLabelValues(sourceID, errKind).Inc()
	}
}

// RecordTaskExecution records the terminal status of a task execution.
func (m *Metrics) RecordTaskExecution(taskID, status string) {
	m.TaskExecutions.WithLabelValues(taskID, status).Inc()
}

// RecordTransaction records a transaction reaching status (pending,
// confirmed, failed, stuck, replaced).
func (m *Metrics) RecordTransaction(status string) {
	m.TransactionsByStatus.WithLabelValues(status).Inc()
}

// RecordOracleUpdate records an attempted oracle value submission.
func (m *Metrics) RecordOracleUpdate(taskID, contractID, status string, d time.Duration) {
	m.OracleUpdates.WithLabelValues(taskID, contractID, status).Inc()
	m.OracleUpdateDuration.WithLabelValues(taskID).Observe(d.Seconds())
}

// SampleSystem polls process/host CPU and memory utilization into the
// system_memory/system_cpu gauges. Intended to be called on a periodic
// ticker from the process entrypoint.
func (m *Metrics) SampleSystem(ctx context.Context) {
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.SystemMemory.Set(vm.UsedPercent)
	}
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		m.SystemCPU.Set(pcts[0])
	}
}
