package account

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/ftbench/internal/chain"
)

// refreshConcurrency bounds parallel nonce lookups so a large registry does
// not stampede the node.
const refreshConcurrency = 16

// ContractIndex is the registry slot of the contract account.
const ContractIndex = 0

// Registry holds the contract account and the generated test accounts.
// Slot 0 is always the contract account; it participates in transfers like
// any other account.
type Registry struct {
	accounts []*Account
}

// NewRegistry creates a registry seeded with the contract account.
func NewRegistry(contract *Account) *Registry {
	return &Registry{accounts: []*Account{contract}}
}

// Generate derives count implicit accounts from seed and appends them.
// The same seed always yields the same accounts, so a rerun can address
// accounts created by an earlier run.
func (r *Registry) Generate(count int, seed uint64) {
	src := rand.NewChaCha8(chachaSeed(seed))
	for i := 0; i < count; i++ {
		var keySeed [ed25519.SeedSize]byte
		src.Read(keySeed[:])
		r.accounts = append(r.accounts, NewAccount("", ed25519.NewKeyFromSeed(keySeed[:])))
	}
}

// chachaSeed widens a uint64 seed into the 256-bit form ChaCha8 wants.
func chachaSeed(seed uint64) [32]byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], seed)
	return sha256.Sum256(raw[:])
}

// Len returns the number of accounts, contract included.
func (r *Registry) Len() int {
	return len(r.accounts)
}

// At returns the account in slot i.
func (r *Registry) At(i int) *Account {
	return r.accounts[i]
}

// Contract returns the contract account.
func (r *Registry) Contract() *Account {
	return r.accounts[ContractIndex]
}

// All returns every account, contract first. The slice is shared.
func (r *Registry) All() []*Account {
	return r.accounts
}

// RefreshNonces overwrites every account's nonce baseline with the on-chain
// value, with bounded parallelism. Any failed lookup fails the refresh.
func (r *Registry) RefreshNonces(ctx context.Context, node chain.Node, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	var done atomic.Int64
	total := len(r.accounts)
	for idx, acc := range r.accounts {
		g.Go(func() error {
			if err := acc.RefreshNonce(ctx, node); err != nil {
				return fmt.Errorf("account %d: %w", idx, err)
			}
			if n := done.Add(1); n%500 == 0 {
				logger.Info("nonce refresh progress",
					slog.Int64("done", n),
					slog.Int("total", total),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("nonces refreshed", slog.Int("accounts", total))
	return nil
}
