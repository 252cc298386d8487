package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Pool spreads workers across one or more RPC endpoints.
type Pool struct {
	nodes []Node
	next  atomic.Uint32
}

// NewPool creates a pool over the given nodes.
func NewPool(nodes []Node) (*Pool, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}
	return &Pool{nodes: nodes}, nil
}

// Next returns the next node in round-robin order.
func (p *Pool) Next() Node {
	idx := p.next.Add(1) - 1
	return p.nodes[int(idx)%len(p.nodes)]
}

// Primary returns the first node. Setup phases and the block anchor use a
// single endpoint so reads observe their own writes.
func (p *Pool) Primary() Node {
	return p.nodes[0]
}

// Size returns the number of endpoints.
func (p *Pool) Size() int {
	return len(p.nodes)
}

// Probe checks every endpoint is reachable and that all endpoints agree on
// the chain. Any unreachable endpoint fails the probe.
func (p *Pool) Probe(ctx context.Context, logger *slog.Logger) error {
	var chainID string
	for _, node := range p.nodes {
		status, err := node.Status(ctx)
		if err != nil {
			return fmt.Errorf("probe %s: %w", node.URL(), err)
		}
		if chainID == "" {
			chainID = status.ChainID
		} else if status.ChainID != chainID {
			return fmt.Errorf("endpoint %s is on chain %q, expected %q", node.URL(), status.ChainID, chainID)
		}
		logger.Info("endpoint probed",
			slog.String("url", node.URL()),
			slog.String("chain_id", status.ChainID),
			slog.String("version", status.Version.Version),
			slog.Uint64("height", status.SyncInfo.LatestBlockHeight),
		)
		if status.SyncInfo.Syncing {
			logger.Warn("endpoint is still syncing", slog.String("url", node.URL()))
		}
	}
	return nil
}
