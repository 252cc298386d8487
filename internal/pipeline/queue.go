package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gateway-fm/ftbench/internal/metrics"
)

// drainPollInterval is how often Drain re-checks the outstanding counter.
const drainPollInterval = 500 * time.Millisecond

// Queue is the bounded work queue feeding the worker pool. Alongside the
// channel it keeps an outstanding counter: tasks enqueued minus tasks
// completed. A worker holding a task still counts as outstanding, so the
// counter reaching zero means every enqueued task reached a final outcome.
type Queue struct {
	tasks       chan *Task
	outstanding metrics.Gauge
	logger      *slog.Logger
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		tasks:  make(chan *Task, capacity),
		logger: logger,
	}
}

// Enqueue counts the task as outstanding and inserts it, blocking while the
// queue is at capacity. On cancellation the count is rolled back and the
// task is not inserted.
func (q *Queue) Enqueue(ctx context.Context, t *Task) error {
	q.outstanding.Inc()
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		q.outstanding.Dec()
		return ctx.Err()
	}
}

// Put re-inserts a task a worker still owns, without touching the counter.
// The worker just vacated a slot by dequeuing, so this never blocks.
func (q *Queue) Put(t *Task) {
	q.tasks <- t
}

// Get removes one task, blocking until one is available. Returns nil on
// cancellation.
func (q *Queue) Get(ctx context.Context) *Task {
	select {
	case t := <-q.tasks:
		return t
	case <-ctx.Done():
		return nil
	}
}

// Complete marks one task as finished. Must be called exactly once per
// enqueued task.
func (q *Queue) Complete() {
	if v := q.outstanding.Dec(); v < 0 {
		// A double completion. The counter is now lying; make it loud.
		q.logger.Error("outstanding counter went negative",
			slog.Int64("outstanding", v),
		)
	}
}

// Outstanding returns the number of tasks not yet completed.
func (q *Queue) Outstanding() int64 {
	return q.outstanding.Load()
}

// PeakOutstanding returns the highest outstanding count seen so far.
func (q *Queue) PeakOutstanding() int64 {
	return q.outstanding.Peak()
}

// Capacity returns the queue capacity.
func (q *Queue) Capacity() int {
	return cap(q.tasks)
}

// Drain blocks until every outstanding task has completed, logging progress
// while it waits.
func (q *Queue) Drain(ctx context.Context, label string) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		n := q.Outstanding()
		if n == 0 {
			q.logger.Info(label + " complete")
			return nil
		}
		q.logger.Info("waiting for "+label, slog.Int64("remaining", n))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
