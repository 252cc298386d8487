// Package account manages signing identities for the benchmark.
package account

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/gateway-fm/ftbench/internal/chain"
)

const ed25519Prefix = "ed25519:"

// Account holds a signing identity and its nonce allocator. The allocator
// hands out strictly increasing values and never reuses one, no matter how
// many goroutines draw from it.
type Account struct {
	ID         string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey

	mu    sync.Mutex
	nonce uint64
}

// NewAccount wraps a key pair. An empty id defaults to the implicit account
// form, the hex encoding of the public key.
func NewAccount(id string, privateKey ed25519.PrivateKey) *Account {
	publicKey := privateKey.Public().(ed25519.PublicKey)
	if id == "" {
		id = hex.EncodeToString(publicKey)
	}
	return &Account{
		ID:         id,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}
}

// NextNonce increments the nonce and returns the new value. The first value
// after a refresh is one past the on-chain nonce, which is what the network
// expects for the next transaction.
func (a *Account) NextNonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nonce++
	return a.nonce
}

// PeekNonce returns the last issued nonce without consuming one.
func (a *Account) PeekNonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}

// SetNonce overwrites the nonce baseline.
func (a *Account) SetNonce(nonce uint64) {
	a.mu.Lock()
	a.nonce = nonce
	a.mu.Unlock()
}

// RefreshNonce fetches the on-chain access key nonce and overwrites the local
// baseline with it. Callers must ensure no allocation is in flight for this
// account while refreshing.
func (a *Account) RefreshNonce(ctx context.Context, node chain.Node) error {
	nonce, err := node.AccessKeyNonce(ctx, a.ID, a.PublicKeyString())
	if err != nil {
		return fmt.Errorf("refresh nonce for %s: %w", a.ID, err)
	}
	a.SetNonce(nonce)
	return nil
}

// PublicKeyString returns the key in ed25519:<base58> form.
func (a *Account) PublicKeyString() string {
	return ed25519Prefix + base58.Encode(a.PublicKey)
}

// SecretKeyString returns the private key in ed25519:<base58> form.
func (a *Account) SecretKeyString() string {
	return ed25519Prefix + base58.Encode(a.PrivateKey)
}

// ParsePrivateKey decodes an ed25519:<base58> secret key. Both the 64-byte
// expanded form and the 32-byte seed form are accepted.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	encoded, found := strings.CutPrefix(s, ed25519Prefix)
	if !found {
		return nil, fmt.Errorf("secret key must start with %q", ed25519Prefix)
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("secret key is %d bytes, want %d or %d", len(raw), ed25519.PrivateKeySize, ed25519.SeedSize)
	}
}

// keyFile matches the JSON layout of validator and account key files.
// Older files use "private_key" where newer ones use "secret_key".
type keyFile struct {
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	SecretKey  string `json:"secret_key"`
	PrivateKey string `json:"private_key"`
}

// LoadKeyFile reads an account from a validator-style key file.
func LoadKeyFile(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}

	secret := kf.SecretKey
	if secret == "" {
		secret = kf.PrivateKey
	}
	if secret == "" {
		return nil, fmt.Errorf("key file %s has no secret_key or private_key", path)
	}
	privateKey, err := ParsePrivateKey(secret)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}

	acc := NewAccount(kf.AccountID, privateKey)
	if kf.PublicKey != "" && kf.PublicKey != acc.PublicKeyString() {
		return nil, fmt.Errorf("key file %s: public key %s does not match secret key", path, kf.PublicKey)
	}
	return acc, nil
}
