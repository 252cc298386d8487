// Package verify provides post-seed balance spot checks against the chain.
package verify

import (
	"context"
	"log/slog"
	"math/big"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/ftbench/internal/account"
	"github.com/gateway-fm/ftbench/internal/chain"
	"github.com/gateway-fm/ftbench/internal/ops"
)

// checkConcurrency bounds parallel view calls during a spot check.
const checkConcurrency = 8

// Result summarizes a balance spot check.
type Result struct {
	Sampled    int
	Matched    int
	Mismatched int
	Errors     int
}

// Clean reports whether every sampled balance matched.
func (r Result) Clean() bool {
	return r.Mismatched == 0 && r.Errors == 0
}

// Verifier spot-checks fungible token balances after seeding.
type Verifier struct {
	node   chain.Node
	logger *slog.Logger
}

// NewVerifier creates a verification handler.
func NewVerifier(node chain.Node, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{node: node, logger: logger}
}

// SpotCheck fetches ft_balance_of for an evenly distributed sample of
// accounts and compares each against want. Mismatches and fetch errors are
// logged as warnings and counted; they never fail the check. Setup phases
// are best effort, so a dirty result is advisory.
func (v *Verifier) SpotCheck(ctx context.Context, contractID string, accounts []*account.Account, want *big.Int, maxSample int) Result {
	sample := sampleAccounts(accounts, maxSample)
	if len(sample) == 0 {
		return Result{}
	}

	v.logger.Info("spot-checking balances",
		slog.Int("accounts", len(accounts)),
		slog.Int("sample", len(sample)),
		slog.String("want", want.String()),
	)

	var matched, mismatched, errored atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)
	for _, acc := range sample {
		g.Go(func() error {
			balance, err := ops.FTBalance(ctx, v.node, contractID, acc.ID)
			if err != nil {
				errored.Add(1)
				v.logger.Warn("balance check failed",
					slog.String("account", acc.ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if balance.Cmp(want) != 0 {
				mismatched.Add(1)
				v.logger.Warn("balance mismatch",
					slog.String("account", acc.ID),
					slog.String("want", want.String()),
					slog.String("got", balance.String()),
				)
				return nil
			}
			matched.Add(1)
			return nil
		})
	}
	// Workers only report, never fail.
	_ = g.Wait()

	result := Result{
		Sampled:    len(sample),
		Matched:    int(matched.Load()),
		Mismatched: int(mismatched.Load()),
		Errors:     int(errored.Load()),
	}
	if result.Clean() {
		v.logger.Info("spot check passed", slog.Int("sampled", result.Sampled))
	} else {
		v.logger.Warn("spot check found problems",
			slog.Int("sampled", result.Sampled),
			slog.Int("mismatched", result.Mismatched),
			slog.Int("errors", result.Errors),
		)
	}
	return result
}

// sampleAccounts picks up to max accounts, evenly distributed across the
// slice so the sample covers every region of the account range.
func sampleAccounts(accounts []*account.Account, max int) []*account.Account {
	if max <= 0 || len(accounts) == 0 {
		return nil
	}
	if len(accounts) <= max {
		return accounts
	}
	step := len(accounts) / max
	sample := make([]*account.Account, 0, max)
	for i := 0; i < len(accounts) && len(sample) < max; i += step {
		sample = append(sample, accounts[i])
	}
	return sample
}
