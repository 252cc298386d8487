// Package types contains public API types for the FT transfer benchmark.
// These types form the external interface and must remain backwards-compatible.
package types

// Phase represents the current benchmark phase.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseProbing      Phase = "probing"
	PhaseDeploying    Phase = "deploying"
	PhaseInitializing Phase = "initializing"
	PhaseTopUp        Phase = "top-up"
	PhaseNonceRefresh Phase = "nonce-refresh"
	PhaseRegistering  Phase = "registering"
	PhaseSeeding      Phase = "seeding"
	PhaseVerifying    Phase = "verifying"
	PhaseSteadyState  Phase = "steady-state"
	PhaseDone         Phase = "done"
)

// RunStatus represents the state of a persisted benchmark run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusError       RunStatus = "error"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds completion latency statistics.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"` // ms
	Max     float64         `json:"max"` // ms
	Avg     float64         `json:"avg"` // ms
	P50     float64         `json:"p50"` // ms
	P75     float64         `json:"p75"` // ms
	P90     float64         `json:"p90"` // ms
	P95     float64         `json:"p95"` // ms
	P99     float64         `json:"p99"` // ms
	Buckets []LatencyBucket `json:"buckets"`
}

// StatsSnapshot is a point-in-time view of the running benchmark.
type StatsSnapshot struct {
	Phase     Phase   `json:"phase"`
	ElapsedMs int64   `json:"elapsedMs"`
	Seed      uint64  `json:"seed"`
	Accounts  int     `json:"accounts"`
	Workers   int     `json:"workers"`
	Endpoints int     `json:"endpoints"`

	QueueCapacity   int   `json:"queueCapacity"`
	InFlightCap     int   `json:"inFlightCap"`
	Outstanding     int64 `json:"outstanding"`
	PeakOutstanding int64 `json:"peakOutstanding"`

	TransfersSent   uint64 `json:"transfersSent"`
	Submissions     uint64 `json:"submissions"`
	Resubmissions   uint64 `json:"resubmissions"`
	SubmitFailures  uint64 `json:"submitFailures"`
	StatusChecks    uint64 `json:"statusChecks"`
	TxCompleted     uint64 `json:"txCompleted"`
	TxFailed        uint64 `json:"txFailed"`

	CurrentTPS float64 `json:"currentTps"`
	AverageTPS float64 `json:"averageTps"`
	RateCap    float64 `json:"rateCap"` // 0 = uncapped
	Paused     bool    `json:"paused"`

	Latency *LatencyStats `json:"latency,omitempty"`
}

// RateRequest is the API request to change the steady-state rate cap.
type RateRequest struct {
	TPS float64 `json:"tps"` // 0 removes the cap
}

// ControlResponse acknowledges a control request.
type ControlResponse struct {
	Status string  `json:"status"`
	TPS    float64 `json:"tps,omitempty"`
}
