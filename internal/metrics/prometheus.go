package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics for the benchmark.
type PrometheusMetrics struct {
	// Counters
	TxTotal           *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	SubmitFailures    *prometheus.CounterVec
	StatusChecks      *prometheus.CounterVec
	TransfersEnqueued prometheus.Counter

	// Gauges
	Outstanding prometheus.Gauge
	CurrentTPS  prometheus.Gauge
	TargetTPS   prometheus.Gauge
	Phase       *prometheus.GaugeVec

	// Histograms
	CompletionLatency *prometheus.HistogramVec
	RPCLatency        *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftbench_transactions_total",
				Help: "Completed transactions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftbench_submissions_total",
				Help: "Accepted submissions by attempt (first or retry)",
			},
			[]string{"attempt"},
		),

		SubmitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftbench_submit_failures_total",
				Help: "Rejected submission attempts by transaction kind",
			},
			[]string{"kind"},
		),

		StatusChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftbench_status_checks_total",
				Help: "Transaction status polls by verdict",
			},
			[]string{"verdict"},
		),

		TransfersEnqueued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ftbench_transfers_enqueued_total",
				Help: "Steady-state transfers handed to the work queue",
			},
		),

		Outstanding: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ftbench_outstanding_transactions",
				Help: "Transactions enqueued or in flight",
			},
		),

		CurrentTPS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ftbench_current_tps",
				Help: "Measured transfer completions per second",
			},
		),

		TargetTPS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ftbench_target_tps",
				Help: "Configured transfer rate cap (0 means unlimited)",
			},
		),

		Phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ftbench_phase",
				Help: "Current benchmark phase (1 if active, 0 otherwise)",
			},
			[]string{"phase"},
		),

		CompletionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftbench_completion_latency_seconds",
				Help:    "Submission-to-completion latency in seconds",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 15, 30},
			},
			[]string{"kind"},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftbench_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"method", "status"},
		),
	}
}

// RecordSubmission records an accepted submission.
func (m *PrometheusMetrics) RecordSubmission(retry bool) {
	attempt := "first"
	if retry {
		attempt = "retry"
	}
	m.Submissions.WithLabelValues(attempt).Inc()
}

// RecordSubmitFailure records a rejected submission attempt.
func (m *PrometheusMetrics) RecordSubmitFailure(kind string) {
	m.SubmitFailures.WithLabelValues(kind).Inc()
}

// RecordStatusCheck records one status poll.
func (m *PrometheusMetrics) RecordStatusCheck(verdict string) {
	m.StatusChecks.WithLabelValues(verdict).Inc()
}

// RecordCompleted records a transaction reaching a final outcome.
func (m *PrometheusMetrics) RecordCompleted(kind, outcome string) {
	m.TxTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveCompletionLatency records submission-to-completion latency.
func (m *PrometheusMetrics) ObserveCompletionLatency(kind string, latencySeconds float64) {
	m.CompletionLatency.WithLabelValues(kind).Observe(latencySeconds)
}

// knownRPCMethods is the fixed set of methods the benchmark issues. Anything
// else is bucketed as "other" to keep label cardinality bounded.
var knownRPCMethods = map[string]bool{
	"broadcast_tx_async": true,
	"tx":                 true,
	"block":              true,
	"query":              true,
	"status":             true,
}

// RecordRPCLatency records RPC call latency.
func (m *PrometheusMetrics) RecordRPCLatency(method, status string, latencySeconds float64) {
	if !knownRPCMethods[method] {
		method = "other"
	}
	m.RPCLatency.WithLabelValues(method, status).Observe(latencySeconds)
}

// SetOutstanding updates the outstanding transactions gauge.
func (m *PrometheusMetrics) SetOutstanding(count int64) {
	m.Outstanding.Set(float64(count))
}

// SetCurrentTPS updates the measured rate gauge.
func (m *PrometheusMetrics) SetCurrentTPS(tps float64) {
	m.CurrentTPS.Set(tps)
}

// SetTargetTPS updates the rate cap gauge.
func (m *PrometheusMetrics) SetTargetTPS(tps float64) {
	m.TargetTPS.Set(tps)
}

// benchPhases mirrors the phase constants; the gauge carries one series per
// phase so dashboards can plot transitions.
var benchPhases = []string{
	"idle", "probing", "deploying", "initializing", "top-up", "nonce-refresh",
	"registering", "seeding", "verifying", "steady-state", "done",
}

// SetPhase marks one phase active and all others inactive.
func (m *PrometheusMetrics) SetPhase(phase string) {
	for _, p := range benchPhases {
		if p == phase {
			m.Phase.WithLabelValues(p).Set(1)
		} else {
			m.Phase.WithLabelValues(p).Set(0)
		}
	}
}
