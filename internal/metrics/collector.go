package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/gateway-fm/ftbench/pkg/types"
)

// Collector receives transaction lifecycle events from the workers and the
// driver. Implementations must be cheap and safe for concurrent use; every
// worker reports through the same instance.
type Collector interface {
	// RecordSubmitted notes the first submission of a transaction.
	RecordSubmitted(hash, kind string, at time.Time)

	// RecordResubmitted notes that a transaction expired unobserved and was
	// submitted again under a new hash. Latency keeps counting from the
	// first submission.
	RecordResubmitted(prevHash, newHash, kind string, at time.Time)

	// RecordSubmitFailure notes a submission attempt no node accepted.
	RecordSubmitFailure(kind string)

	// RecordStatusCheck notes one status poll and its verdict.
	RecordStatusCheck(verdict string)

	// RecordCompleted notes a transaction reaching a final outcome.
	RecordCompleted(hash, kind string, success bool, at time.Time)

	// RecordTransfer notes one steady-state transfer entering the queue.
	RecordTransfer()

	SetPhase(phase types.Phase)
	SetCurrentTPS(tps float64)
	SetTargetTPS(tps float64)

	CurrentTPS() float64
	Submissions() int64
	Resubmissions() int64
	SubmitFailures() int64
	StatusChecks() int64
	Completed() int64
	Failed() int64
	Transfers() int64
	LatencyStats() *types.LatencyStats
}

// MemoryCollector is the in-memory Collector. It optionally mirrors events
// into Prometheus metrics.
type MemoryCollector struct {
	submitTimes *TxTracker
	latency     *StreamingLatencyStats

	submissions    Counter
	resubmissions  Counter
	submitFailures Counter
	statusChecks   Counter
	completed      Counter
	failed         Counter
	transfers      Counter

	currentTPS atomic.Uint64 // float64 bits

	prom *PrometheusMetrics
}

// NewMemoryCollector creates a collector. prom may be nil, in which case
// events are tracked in memory only.
func NewMemoryCollector(prom *PrometheusMetrics) *MemoryCollector {
	return &MemoryCollector{
		submitTimes: NewTxTracker(),
		latency:     NewStreamingLatencyStats(),
		prom:        prom,
	}
}

// RecordSubmitted notes the first submission of a transaction.
func (c *MemoryCollector) RecordSubmitted(hash, kind string, at time.Time) {
	c.submitTimes.Set(hash, at)
	c.submissions.Inc()
	if c.prom != nil {
		c.prom.RecordSubmission(false)
	}
}

// RecordResubmitted carries the original submission time over to the new
// hash, so completion latency spans the whole retry chain. A resubmission
// with no tracked predecessor starts a fresh measurement.
func (c *MemoryCollector) RecordResubmitted(prevHash, newHash, kind string, at time.Time) {
	if sentTime, ok := c.submitTimes.GetAndDelete(prevHash); ok {
		c.submitTimes.Set(newHash, sentTime)
	} else {
		c.submitTimes.Set(newHash, at)
	}
	c.submissions.Inc()
	c.resubmissions.Inc()
	if c.prom != nil {
		c.prom.RecordSubmission(true)
	}
}

// RecordSubmitFailure notes a submission attempt no node accepted.
func (c *MemoryCollector) RecordSubmitFailure(kind string) {
	c.submitFailures.Inc()
	if c.prom != nil {
		c.prom.RecordSubmitFailure(kind)
	}
}

// RecordStatusCheck notes one status poll and its verdict.
func (c *MemoryCollector) RecordStatusCheck(verdict string) {
	c.statusChecks.Inc()
	if c.prom != nil {
		c.prom.RecordStatusCheck(verdict)
	}
}

// RecordCompleted notes a final outcome. Latency is recorded for successes
// only; failed transactions just release their tracker entry.
func (c *MemoryCollector) RecordCompleted(hash, kind string, success bool, at time.Time) {
	sentTime, tracked := c.submitTimes.GetAndDelete(hash)
	if !success {
		c.failed.Inc()
		if c.prom != nil {
			c.prom.RecordCompleted(kind, "failure")
		}
		return
	}

	c.completed.Inc()
	if tracked {
		latency := at.Sub(sentTime)
		c.latency.Add(float64(latency.Milliseconds()))
		if c.prom != nil {
			c.prom.ObserveCompletionLatency(kind, latency.Seconds())
		}
	}
	if c.prom != nil {
		c.prom.RecordCompleted(kind, "success")
	}
}

// RecordTransfer notes one steady-state transfer entering the queue.
func (c *MemoryCollector) RecordTransfer() {
	c.transfers.Inc()
	if c.prom != nil {
		c.prom.TransfersEnqueued.Inc()
	}
}

// SetPhase mirrors the benchmark phase into Prometheus.
func (c *MemoryCollector) SetPhase(phase types.Phase) {
	if c.prom != nil {
		c.prom.SetPhase(string(phase))
	}
}

// SetCurrentTPS publishes the measured completion rate.
func (c *MemoryCollector) SetCurrentTPS(tps float64) {
	c.currentTPS.Store(math.Float64bits(tps))
	if c.prom != nil {
		c.prom.SetCurrentTPS(tps)
	}
}

// SetTargetTPS publishes the configured rate cap.
func (c *MemoryCollector) SetTargetTPS(tps float64) {
	if c.prom != nil {
		c.prom.SetTargetTPS(tps)
	}
}

// CurrentTPS returns the last published completion rate.
func (c *MemoryCollector) CurrentTPS() float64 {
	return math.Float64frombits(c.currentTPS.Load())
}

// Submissions returns the total number of accepted submissions, including
// resubmissions.
func (c *MemoryCollector) Submissions() int64 { return c.submissions.Load() }

// Resubmissions returns the number of expiry-driven resubmissions.
func (c *MemoryCollector) Resubmissions() int64 { return c.resubmissions.Load() }

// SubmitFailures returns the number of rejected submission attempts.
func (c *MemoryCollector) SubmitFailures() int64 { return c.submitFailures.Load() }

// StatusChecks returns the number of status polls performed.
func (c *MemoryCollector) StatusChecks() int64 { return c.statusChecks.Load() }

// Completed returns the number of transactions that succeeded.
func (c *MemoryCollector) Completed() int64 { return c.completed.Load() }

// Failed returns the number of transactions that failed for good.
func (c *MemoryCollector) Failed() int64 { return c.failed.Load() }

// Transfers returns the number of steady-state transfers enqueued.
func (c *MemoryCollector) Transfers() int64 { return c.transfers.Load() }

// LatencyStats returns completion latency statistics, or nil before the
// first completion.
func (c *MemoryCollector) LatencyStats() *types.LatencyStats {
	return c.latency.GetStats()
}

// ObserveRPC mirrors per-call RPC telemetry into Prometheus. It satisfies
// the node observer hook.
func (c *MemoryCollector) ObserveRPC(method, status string, elapsed time.Duration) {
	if c.prom != nil {
		c.prom.RecordRPCLatency(method, status, elapsed.Seconds())
	}
}
