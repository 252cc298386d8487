package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Storage defines the persistence interface for benchmark run history.
type Storage interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *BenchRun) error
	UpdateRun(ctx context.Context, run *BenchRun) error
	CompleteRun(ctx context.Context, id string, run *BenchRun) error
	GetRun(ctx context.Context, id string) (*BenchRun, error)

	// History queries
	ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error)
	DeleteRun(ctx context.Context, id string) error

	// Time-series bulk operations (samples are flushed when the run ends)
	BulkInsertSamples(ctx context.Context, runID string, samples []RunSample) error
	GetSamples(ctx context.Context, runID string) ([]RunSample, error)

	// Lifecycle
	Close() error
}
