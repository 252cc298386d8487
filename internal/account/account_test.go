package account

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/gateway-fm/ftbench/internal/chain"
)

func testAccount(t *testing.T) *Account {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, "ftbench-test-account-seed")
	return NewAccount("", ed25519.NewKeyFromSeed(seed))
}

func TestNextNonce(t *testing.T) {
	acc := testAccount(t)
	acc.SetNonce(100)

	// NextNonce increments first: the stored value is the last used one.
	if got := acc.NextNonce(); got != 101 {
		t.Errorf("NextNonce() = %d, want 101", got)
	}
	if got := acc.NextNonce(); got != 102 {
		t.Errorf("NextNonce() = %d, want 102", got)
	}
	if got := acc.PeekNonce(); got != 102 {
		t.Errorf("PeekNonce() = %d, want 102", got)
	}
}

func TestPeekNonceDoesNotConsume(t *testing.T) {
	acc := testAccount(t)
	acc.SetNonce(50)

	if got := acc.PeekNonce(); got != 50 {
		t.Errorf("PeekNonce() = %d, want 50", got)
	}
	if got := acc.PeekNonce(); got != 50 {
		t.Errorf("PeekNonce() = %d, want 50 (should not change)", got)
	}
}

func TestSetNonceOverwrites(t *testing.T) {
	acc := testAccount(t)
	acc.SetNonce(100)
	acc.NextNonce()

	// A refresh overwrites unconditionally, even to a lower value. The
	// caller guarantees nothing is in flight for the account.
	acc.SetNonce(7)
	if got := acc.PeekNonce(); got != 7 {
		t.Errorf("PeekNonce() = %d, want 7", got)
	}
	if got := acc.NextNonce(); got != 8 {
		t.Errorf("NextNonce() = %d, want 8", got)
	}
}

func TestNextNonceConcurrency(t *testing.T) {
	acc := testAccount(t)

	const numGoroutines = 100
	const drawsPerGoroutine = 50
	total := numGoroutines * drawsPerGoroutine

	results := make(chan uint64, total)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < drawsPerGoroutine; j++ {
				results <- acc.NextNonce()
			}
		}()
	}
	wg.Wait()
	close(results)

	// Every value in 1..total must appear exactly once.
	seen := make(map[uint64]bool, total)
	for n := range results {
		if seen[n] {
			t.Fatalf("nonce %d issued twice", n)
		}
		seen[n] = true
	}
	for n := uint64(1); n <= uint64(total); n++ {
		if !seen[n] {
			t.Fatalf("nonce %d never issued", n)
		}
	}
	if got := acc.PeekNonce(); got != uint64(total) {
		t.Errorf("PeekNonce() = %d, want %d", got, total)
	}
}

// nonceNode serves access key nonces from a map.
type nonceNode struct {
	chain.Node
	mu     sync.Mutex
	nonces map[string]uint64
	err    error
}

func (n *nonceNode) AccessKeyNonce(ctx context.Context, accountID, publicKey string) (uint64, error) {
	if n.err != nil {
		return 0, n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonces[accountID], nil
}

func TestRefreshNonceOverwrites(t *testing.T) {
	acc := testAccount(t)
	acc.SetNonce(999)

	node := &nonceNode{nonces: map[string]uint64{acc.ID: 12}}
	if err := acc.RefreshNonce(context.Background(), node); err != nil {
		t.Fatalf("RefreshNonce() error = %v", err)
	}
	if got := acc.PeekNonce(); got != 12 {
		t.Errorf("PeekNonce() = %d, want on-chain value 12", got)
	}
	if got := acc.NextNonce(); got != 13 {
		t.Errorf("NextNonce() = %d, want 13", got)
	}
}

func TestImplicitAccountID(t *testing.T) {
	acc := testAccount(t)
	if len(acc.ID) != 64 {
		t.Fatalf("implicit ID length = %d, want 64", len(acc.ID))
	}
	raw, err := hex.DecodeString(acc.ID)
	if err != nil {
		t.Fatalf("implicit ID is not hex: %v", err)
	}
	if !ed25519.PublicKey(raw).Equal(acc.PublicKey) {
		t.Error("implicit ID does not encode the public key")
	}
}

func TestParsePrivateKey(t *testing.T) {
	acc := testAccount(t)

	// Expanded 64-byte form round trips.
	parsed, err := ParsePrivateKey(acc.SecretKeyString())
	if err != nil {
		t.Fatalf("ParsePrivateKey(expanded) error = %v", err)
	}
	if !parsed.Equal(acc.PrivateKey) {
		t.Error("expanded key round trip mismatch")
	}

	// 32-byte seed form yields the same key.
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, "ftbench-test-account-seed")
	seedKey := NewAccount("", ed25519.NewKeyFromSeed(seed))
	parsed, err = ParsePrivateKey("ed25519:" + base58.Encode(seed))
	if err != nil {
		t.Fatalf("ParsePrivateKey(seed) error = %v", err)
	}
	if !parsed.Equal(seedKey.PrivateKey) {
		t.Error("seed key round trip mismatch")
	}

	// Missing prefix and bad lengths are rejected.
	if _, err := ParsePrivateKey("abc123"); err == nil {
		t.Error("ParsePrivateKey without prefix succeeded, want error")
	}
	if _, err := ParsePrivateKey("ed25519:111"); err == nil {
		t.Error("ParsePrivateKey with short key succeeded, want error")
	}
}

func TestLoadKeyFile(t *testing.T) {
	acc := testAccount(t)
	dir := t.TempDir()

	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	// secret_key layout
	path := write("secret.json", `{"account_id":"node0","public_key":"`+acc.PublicKeyString()+`","secret_key":"`+acc.SecretKeyString()+`"}`)
	loaded, err := LoadKeyFile(path)
	if err != nil {
		t.Fatalf("LoadKeyFile(secret_key) error = %v", err)
	}
	if loaded.ID != "node0" {
		t.Errorf("ID = %q, want node0", loaded.ID)
	}
	if !loaded.PrivateKey.Equal(acc.PrivateKey) {
		t.Error("loaded private key mismatch")
	}

	// private_key legacy layout, no account_id falls back to implicit
	path = write("legacy.json", `{"private_key":"`+acc.SecretKeyString()+`"}`)
	loaded, err = LoadKeyFile(path)
	if err != nil {
		t.Fatalf("LoadKeyFile(private_key) error = %v", err)
	}
	if loaded.ID != acc.ID {
		t.Errorf("ID = %q, want implicit %q", loaded.ID, acc.ID)
	}

	// mismatched public key
	other := NewAccount("", ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)))
	path = write("mismatch.json", `{"public_key":"`+other.PublicKeyString()+`","secret_key":"`+acc.SecretKeyString()+`"}`)
	if _, err := LoadKeyFile(path); err == nil {
		t.Error("LoadKeyFile with mismatched public key succeeded, want error")
	}

	// no key material at all
	path = write("empty.json", `{"account_id":"node0"}`)
	if _, err := LoadKeyFile(path); err == nil {
		t.Error("LoadKeyFile without key material succeeded, want error")
	}

	if _, err := LoadKeyFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadKeyFile on missing file succeeded, want error")
	}
}

func TestRefreshNonceError(t *testing.T) {
	acc := testAccount(t)
	acc.SetNonce(5)

	node := &nonceNode{err: errors.New("boom")}
	if err := acc.RefreshNonce(context.Background(), node); err == nil {
		t.Fatal("RefreshNonce() error = nil, want error")
	}
	if got := acc.PeekNonce(); got != 5 {
		t.Errorf("PeekNonce() = %d after failed refresh, want 5 unchanged", got)
	}
}
