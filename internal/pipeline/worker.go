package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gateway-fm/ftbench/internal/chain"
)

// ThrottleInterval is the pause after any worker cycle that did not
// broadcast a transaction, so status polling does not saturate the endpoint.
const ThrottleInterval = 100 * time.Millisecond

const defaultWorkers = 4

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Workers  int
	Queue    *Queue
	Nodes    *chain.Pool
	Anchor   *chain.BlockAnchor
	Throttle time.Duration // default ThrottleInterval
	Logger   *slog.Logger
}

// Pool runs the workers that drive queued tasks to completion.
type Pool struct {
	workers  int
	queue    *Queue
	nodes    *chain.Pool
	anchor   *chain.BlockAnchor
	throttle time.Duration
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	throttle := cfg.Throttle
	if throttle <= 0 {
		throttle = ThrottleInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers:  workers,
		queue:    cfg.Queue,
		nodes:    cfg.Nodes,
		anchor:   cfg.Anchor,
		throttle: throttle,
		logger:   logger,
	}
}

// Start launches the workers. Each worker is pinned to one endpoint from the
// node pool and runs until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		node := p.nodes.Next()
		p.wg.Add(1)
		go func(id int, node chain.Node) {
			defer p.wg.Done()
			p.run(ctx, id, node)
		}(i, node)
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int, node chain.Node) {
	logger := p.logger.With(slog.Int("worker", id))
	logger.Debug("worker started", slog.String("endpoint", node.URL()))

	for {
		task := p.queue.Get(ctx)
		if task == nil {
			logger.Debug("worker stopped")
			return
		}

		blockHash, err := p.anchor.Get(ctx)
		if err != nil {
			// No anchor at all, nothing can be submitted. Back off and let
			// another cycle retry.
			p.queue.Put(task)
			logger.Warn("no block anchor available", slog.String("error", err.Error()))
			if !sleepCtx(ctx, p.throttle) {
				return
			}
			continue
		}

		done, submitted := task.Poll(ctx, node, blockHash)
		if done {
			if outcome := task.Outcome(); !outcome.Success {
				logger.Warn("transaction failed",
					slog.String("kind", task.Kind()),
					slog.String("hash", outcome.Hash),
					slog.String("reason", outcome.Reason),
				)
			}
			p.queue.Complete()
			continue
		}

		p.queue.Put(task)
		if !submitted {
			if !sleepCtx(ctx, p.throttle) {
				return
			}
		}
	}
}

// sleepCtx sleeps for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
