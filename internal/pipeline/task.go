// Package pipeline provides transaction lifecycle management: the
// per-transaction retry state machine, the bounded work queue, and the worker
// pool that drives both.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gateway-fm/ftbench/internal/chain"
	"github.com/gateway-fm/ftbench/internal/metrics"
	"github.com/gateway-fm/ftbench/internal/ops"
)

// DefaultTransactionTTL is how long a submission may stay unobserved before
// it is given up on and submitted again under a fresh nonce.
const DefaultTransactionTTL = 10 * time.Second

// State is the lifecycle state of a Task.
type State int

const (
	// StateUnsubmitted means no submission has been accepted yet.
	StateUnsubmitted State = iota
	// StateInFlight means a submission was accepted and its outcome is not
	// yet known.
	StateInFlight
	// StateCompleted means a final outcome was observed. Terminal.
	StateCompleted
)

// Outcome is the final result of a completed Task.
type Outcome struct {
	Success bool
	// Reason carries the network-reported failure payload when Success is
	// false.
	Reason string
	// Hash identifies the submission that completed.
	Hash string
}

// Task drives one chain operation to completion. It submits, polls status,
// and resubmits with a fresh nonce when a submission expires unobserved.
//
// A Task is owned by exactly one goroutine at a time: whichever worker
// dequeued it. It needs no locking of its own.
type Task struct {
	op      ops.Op
	ttl     time.Duration
	metrics metrics.Collector
	logger  *slog.Logger

	state      State
	hash       string
	signer     string
	expiration time.Time
	resubmits  int
	outcome    Outcome
}

// NewTask creates a Task with the default TTL. collector may be nil.
func NewTask(op ops.Op, collector metrics.Collector, logger *slog.Logger) *Task {
	return NewTaskTTL(op, DefaultTransactionTTL, collector, logger)
}

// NewTaskTTL creates a Task with an explicit TTL.
func NewTaskTTL(op ops.Op, ttl time.Duration, collector metrics.Collector, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		op:      op,
		ttl:     ttl,
		metrics: collector,
		logger:  logger,
	}
}

// State returns the current lifecycle state.
func (t *Task) State() State { return t.state }

// Hash returns the hash of the latest submission, or "" before the first.
func (t *Task) Hash() string { return t.hash }

// Kind names the underlying operation.
func (t *Task) Kind() string { return t.op.Kind() }

// Resubmits returns how many times the task went out again after expiry.
func (t *Task) Resubmits() int { return t.resubmits }

// Outcome returns the final outcome. Only meaningful once completed.
func (t *Task) Outcome() Outcome { return t.outcome }

// Poll advances the state machine by one step against the given node,
// anchoring any new submission to blockHash. It reports done when the task
// reached a final outcome and submitted when this step broadcast a
// transaction.
func (t *Task) Poll(ctx context.Context, node chain.Node, blockHash []byte) (done, submitted bool) {
	now := time.Now()

	if t.state == StateCompleted {
		return true, false
	}
	if t.state == StateUnsubmitted || now.After(t.expiration) {
		return false, t.submit(ctx, node, blockHash, now)
	}
	return t.check(ctx, node, now), false
}

// submit broadcasts the operation under a fresh nonce. On error the state is
// left untouched so the next poll tries again.
func (t *Task) submit(ctx context.Context, node chain.Node, blockHash []byte, now time.Time) bool {
	resubmission := t.state == StateInFlight
	prevHash := t.hash

	sub, err := t.op.Send(ctx, node, blockHash)
	if err != nil {
		if t.metrics != nil {
			t.metrics.RecordSubmitFailure(t.op.Kind())
		}
		t.logger.Debug("submission failed",
			slog.String("kind", t.op.Kind()),
			slog.String("error", err.Error()),
		)
		return false
	}

	t.state = StateInFlight
	t.hash = sub.Hash
	t.signer = sub.Signer
	t.expiration = now.Add(t.ttl)

	if resubmission {
		t.resubmits++
		if t.metrics != nil {
			t.metrics.RecordResubmitted(prevHash, sub.Hash, t.op.Kind(), now)
		}
		t.logger.Debug("transaction resubmitted",
			slog.String("kind", t.op.Kind()),
			slog.String("prev_hash", prevHash),
			slog.String("hash", sub.Hash),
			slog.Uint64("nonce", sub.Nonce),
			slog.Int("resubmits", t.resubmits),
		)
	} else if t.metrics != nil {
		t.metrics.RecordSubmitted(sub.Hash, t.op.Kind(), now)
	}
	return true
}

// check queries the status of the in-flight submission. Only an affirmative
// pending verdict extends the expiration; unknown hashes and transport
// trouble leave the deadline alone, so a dropped submission still goes out
// again on schedule.
func (t *Task) check(ctx context.Context, node chain.Node, now time.Time) bool {
	status, err := node.TxStatus(ctx, t.hash, t.signer)
	if err != nil {
		if t.metrics != nil {
			t.metrics.RecordStatusCheck("error")
		}
		return false
	}
	if t.metrics != nil {
		t.metrics.RecordStatusCheck(status.Verdict.String())
	}

	switch status.Verdict {
	case chain.VerdictSuccess:
		t.complete(Outcome{Success: true, Hash: t.hash}, now)
		return true
	case chain.VerdictFailure:
		t.complete(Outcome{Success: false, Reason: status.FailureReason, Hash: t.hash}, now)
		return true
	case chain.VerdictPending:
		t.expiration = now.Add(t.ttl)
		return false
	default:
		return false
	}
}

func (t *Task) complete(outcome Outcome, at time.Time) {
	t.state = StateCompleted
	t.outcome = outcome
	if t.metrics != nil {
		t.metrics.RecordCompleted(outcome.Hash, t.op.Kind(), outcome.Success, at)
	}
}
