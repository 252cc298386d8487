// Package storage provides persistence for benchmark run history.
package storage

import (
	"time"

	"github.com/gateway-fm/ftbench/pkg/types"
)

// BenchRun represents a persisted benchmark run with summary statistics.
// JSON tags use camelCase to match the monitor API conventions.
type BenchRun struct {
	ID           string          `json:"id"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Status       types.RunStatus `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`

	Seed     uint64 `json:"seed"`
	Accounts int    `json:"accounts"`
	Workers  int    `json:"workers"`

	DurationMs      int64   `json:"durationMs"`
	TransfersSent   uint64  `json:"transfersSent"`
	Submissions     uint64  `json:"submissions"`
	Resubmissions   uint64  `json:"resubmissions"`
	SubmitFailures  uint64  `json:"submitFailures"`
	StatusChecks    uint64  `json:"statusChecks"`
	TxCompleted     uint64  `json:"txCompleted"`
	TxFailed        uint64  `json:"txFailed"`
	AverageTPS      float64 `json:"averageTps"`
	PeakOutstanding int64   `json:"peakOutstanding"`

	Latency *types.LatencyStats `json:"latency,omitempty"`
	Config  *RunConfig          `json:"config,omitempty"`
}

// RunConfig snapshots the benchmark configuration at run start so results
// stay interpretable after the deployment changes.
type RunConfig struct {
	Endpoints     []string `json:"endpoints"`
	ContractID    string   `json:"contractId"`
	Accounts      int      `json:"accounts"`
	Workers       int      `json:"workers"`
	InFlightCap   int      `json:"inFlightCap"`
	QueueCapacity int      `json:"queueCapacity"`
	TxTTLMs       int64    `json:"txTtlMs"`
	RateCap       float64  `json:"rateCap,omitempty"`
	TransferLimit uint64   `json:"transferLimit,omitempty"`
	TopUp         bool     `json:"topUp"`
	Verify        bool     `json:"verify"`
	Shards        int      `json:"shards,omitempty"`
}

// RunSample represents a single metrics sample during a run.
// JSON tags use camelCase to match the monitor API conventions.
type RunSample struct {
	TimestampMs   int64   `json:"timestampMs"` // Milliseconds since run start
	TransfersSent uint64  `json:"transfersSent"`
	Submissions   uint64  `json:"submissions"`
	TxCompleted   uint64  `json:"txCompleted"`
	TxFailed      uint64  `json:"txFailed"`
	Outstanding   int64   `json:"outstanding"`
	CurrentTPS    float64 `json:"currentTps"`
	TargetTPS     float64 `json:"targetTps"`
}

// RunDetail combines a benchmark run with its time-series samples.
type RunDetail struct {
	Run     *BenchRun   `json:"run"`
	Samples []RunSample `json:"samples"`
}

// PaginatedRuns represents a paginated list of benchmark runs.
type PaginatedRuns struct {
	Runs   []BenchRun `json:"runs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
