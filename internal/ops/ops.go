// Package ops defines the chain operations the benchmark submits: contract
// deployment and initialization, account funding and registration, and the
// fungible token transfers that make up the steady-state load.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/gateway-fm/ftbench/internal/account"
	"github.com/gateway-fm/ftbench/internal/chain"
	"github.com/gateway-fm/ftbench/internal/txbuilder"
)

const (
	// FTTransferGas is the gas attached to every ft_transfer call, sized so
	// 121 transfers fit the block gas budget.
	FTTransferGas uint64 = 1_000_000_000_000_000 / 121

	// MaxGas is attached to setup calls, where per-call gas does not affect
	// measured throughput.
	MaxGas uint64 = 300_000_000_000_000

	// TotalSupply is the token supply minted at initialization, 10^33 units.
	TotalSupply = "1000000000000000000000000000000000"

	initMethod     = "new_default_meta"
	registerMethod = "storage_deposit"
	transferMethod = "ft_transfer"
	balanceMethod  = "ft_balance_of"
)

var (
	yoctoPerNEAR = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

	// StorageDeposit is the balance attached to storage_deposit, 0.1 NEAR,
	// which covers one account's token storage.
	StorageDeposit = new(big.Int).Exp(big.NewInt(10), big.NewInt(23), nil)

	// OneYocto is the deposit ft_transfer demands as proof the caller holds
	// a full-access key.
	OneYocto = big.NewInt(1)

	// SeedAmount is the token balance distributed to every account before
	// the steady state starts.
	SeedAmount = big.NewInt(100_000_000)

	// TopUpAmount is the native balance granted to every generated account.
	// It covers gas for the whole run.
	TopUpAmount = NEAR(2)

	// OneToken is the amount moved by each steady-state transfer.
	OneToken = big.NewInt(1)
)

// NEAR converts whole NEAR to yocto units.
func NEAR(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), yoctoPerNEAR)
}

// Submission identifies a transaction a node accepted for processing.
type Submission struct {
	// Hash is the base58 transaction hash used for status queries.
	Hash string
	// Signer is the ID of the account that signed the transaction. Status
	// queries need it to locate the signer's shard.
	Signer string
	// Nonce is the access key nonce the transaction consumed.
	Nonce uint64
}

// Op is a chain operation that can be signed and submitted. Every Send draws
// a fresh nonce from the signing account and anchors the transaction to the
// given recent block hash, so an Op may be sent repeatedly until one
// submission completes.
type Op interface {
	// Kind names the operation for logs and metrics.
	Kind() string
	// Send signs the operation and submits it to the node.
	Send(ctx context.Context, node chain.Node, blockHash []byte) (Submission, error)
}

// submit broadcasts a signed transaction and reports the accepted submission.
func submit(ctx context.Context, node chain.Node, signed *txbuilder.Signed, signer string, nonce uint64) (Submission, error) {
	hash, err := node.BroadcastTxAsync(ctx, signed.Raw)
	if err != nil {
		return Submission{}, err
	}
	return Submission{Hash: hash, Signer: signer, Nonce: nonce}, nil
}

// TransferNative moves native balance between accounts. The benchmark uses it
// to top up generated accounts from the contract account.
type TransferNative struct {
	From   *account.Account
	To     string
	Amount *big.Int
}

func (op *TransferNative) Kind() string { return "native_transfer" }

func (op *TransferNative) Send(ctx context.Context, node chain.Node, blockHash []byte) (Submission, error) {
	nonce := op.From.NextNonce()
	signed, err := txbuilder.SignPayment(op.From, op.To, op.Amount, nonce, blockHash)
	if err != nil {
		return Submission{}, fmt.Errorf("sign transfer to %s: %w", op.To, err)
	}
	return submit(ctx, node, signed, op.From.ID, nonce)
}

// DeployFT deploys the fungible token contract code onto the contract
// account.
type DeployFT struct {
	Contract *account.Account
	Code     []byte
}

// NewDeployFT loads the contract wasm from disk.
func NewDeployFT(contract *account.Account, wasmPath string) (*DeployFT, error) {
	code, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("read contract wasm: %w", err)
	}
	return &DeployFT{Contract: contract, Code: code}, nil
}

func (op *DeployFT) Kind() string { return "deploy" }

func (op *DeployFT) Send(ctx context.Context, node chain.Node, blockHash []byte) (Submission, error) {
	nonce := op.Contract.NextNonce()
	signed, err := txbuilder.SignDeployContract(op.Contract, op.Code, nonce, blockHash)
	if err != nil {
		return Submission{}, fmt.Errorf("sign deploy: %w", err)
	}
	return submit(ctx, node, signed, op.Contract.ID, nonce)
}

// InitFT initializes the deployed token contract with default metadata,
// minting the full supply to the contract account.
type InitFT struct {
	Contract *account.Account
}

type initArgs struct {
	OwnerID     string `json:"owner_id"`
	TotalSupply string `json:"total_supply"`
}

func (op *InitFT) Kind() string { return "init" }

func (op *InitFT) Send(ctx context.Context, node chain.Node, blockHash []byte) (Submission, error) {
	args, err := json.Marshal(initArgs{OwnerID: op.Contract.ID, TotalSupply: TotalSupply})
	if err != nil {
		return Submission{}, fmt.Errorf("encode init args: %w", err)
	}
	nonce := op.Contract.NextNonce()
	signed, err := txbuilder.SignFunctionCall(op.Contract, op.Contract.ID, initMethod, args, MaxGas, big.NewInt(0), nonce, blockHash)
	if err != nil {
		return Submission{}, fmt.Errorf("sign init: %w", err)
	}
	return submit(ctx, node, signed, op.Contract.ID, nonce)
}

// RegisterAccount pays the storage deposit that registers an account with the
// token contract. The contract account signs, so generated accounts need no
// balance of their own to become token holders.
type RegisterAccount struct {
	Contract  *account.Account
	AccountID string
}

type storageDepositArgs struct {
	AccountID string `json:"account_id"`
}

func (op *RegisterAccount) Kind() string { return "register" }

func (op *RegisterAccount) Send(ctx context.Context, node chain.Node, blockHash []byte) (Submission, error) {
	args, err := json.Marshal(storageDepositArgs{AccountID: op.AccountID})
	if err != nil {
		return Submission{}, fmt.Errorf("encode storage_deposit args: %w", err)
	}
	nonce := op.Contract.NextNonce()
	signed, err := txbuilder.SignFunctionCall(op.Contract, op.Contract.ID, registerMethod, args, MaxGas, StorageDeposit, nonce, blockHash)
	if err != nil {
		return Submission{}, fmt.Errorf("sign storage_deposit for %s: %w", op.AccountID, err)
	}
	return submit(ctx, node, signed, op.Contract.ID, nonce)
}

// TransferFT moves fungible tokens between registered accounts. Seeding and
// the steady-state workload are both built from it.
type TransferFT struct {
	ContractID string
	From       *account.Account
	To         string
	Amount     *big.Int
}

type transferArgs struct {
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
}

func (op *TransferFT) Kind() string { return "ft_transfer" }

func (op *TransferFT) Send(ctx context.Context, node chain.Node, blockHash []byte) (Submission, error) {
	args, err := json.Marshal(transferArgs{ReceiverID: op.To, Amount: op.Amount.String()})
	if err != nil {
		return Submission{}, fmt.Errorf("encode ft_transfer args: %w", err)
	}
	nonce := op.From.NextNonce()
	signed, err := txbuilder.SignFunctionCall(op.From, op.ContractID, transferMethod, args, FTTransferGas, OneYocto, nonce, blockHash)
	if err != nil {
		return Submission{}, fmt.Errorf("sign ft_transfer to %s: %w", op.To, err)
	}
	return submit(ctx, node, signed, op.From.ID, nonce)
}

type balanceArgs struct {
	AccountID string `json:"account_id"`
}

// FTBalance reads an account's token balance with a view call.
func FTBalance(ctx context.Context, node chain.Node, contractID, accountID string) (*big.Int, error) {
	args, err := json.Marshal(balanceArgs{AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("encode ft_balance_of args: %w", err)
	}
	raw, err := node.CallFunction(ctx, contractID, balanceMethod, args)
	if err != nil {
		return nil, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode ft_balance_of result %q: %w", raw, err)
	}
	balance, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse token balance %q", s)
	}
	return balance, nil
}
