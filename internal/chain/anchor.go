package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultAnchorMaxAge bounds how stale the shared block hash may get before
// it is refetched. Transactions anchored at an old block are rejected by the
// network, so this must stay well under the chain's anchor validity window.
const DefaultAnchorMaxAge = 5 * time.Second

// BlockAnchor caches a recent block hash shared by all workers so each poll
// cycle does not cost an extra RPC.
type BlockAnchor struct {
	node   Node
	maxAge time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	hash    []byte
	fetched time.Time
}

// NewBlockAnchor creates an anchor over node. maxAge 0 uses the default.
func NewBlockAnchor(node Node, maxAge time.Duration, logger *slog.Logger) *BlockAnchor {
	if maxAge <= 0 {
		maxAge = DefaultAnchorMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockAnchor{node: node, maxAge: maxAge, logger: logger}
}

// Get returns a recent block hash, refreshing it when stale. The returned
// slice is shared and must not be modified. When a refresh fails but a
// previous hash exists, the stale hash is returned; submissions anchored at
// it may still land, and the lifecycle recovers the ones that do not.
func (a *BlockAnchor) Get(ctx context.Context) ([]byte, error) {
	a.mu.RLock()
	if a.hash != nil && time.Since(a.fetched) < a.maxAge {
		hash := a.hash
		a.mu.RUnlock()
		return hash, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	// Another worker may have refreshed while we waited for the lock.
	if a.hash != nil && time.Since(a.fetched) < a.maxAge {
		return a.hash, nil
	}

	hash, err := a.node.LatestBlockHash(ctx)
	if err != nil {
		if a.hash != nil {
			a.logger.Warn("block anchor refresh failed, using stale hash",
				slog.String("error", err.Error()),
				slog.Duration("age", time.Since(a.fetched)),
			)
			return a.hash, nil
		}
		return nil, fmt.Errorf("fetch block anchor: %w", err)
	}
	a.hash = hash
	a.fetched = time.Now()
	return a.hash, nil
}
