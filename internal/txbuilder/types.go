// Package txbuilder constructs and signs transactions in the ledger's
// borsh wire format.
package txbuilder

import (
	"math/big"

	"github.com/near/borsh-go"
)

// KeyTypeED25519 is the only key type the benchmark uses.
const KeyTypeED25519 uint8 = 0

// PublicKey is the wire form of an access key.
type PublicKey struct {
	KeyType uint8
	Data    [32]uint8
}

// Signature is the wire form of a transaction signature.
type Signature struct {
	KeyType uint8
	Data    [64]uint8
}

// CreateAccount creates the receiver account.
type CreateAccount struct{}

// DeployContract installs code on the receiver account.
type DeployContract struct {
	Code []uint8
}

// FunctionCall invokes a method on the receiver with an attached deposit.
type FunctionCall struct {
	MethodName string
	Args       []uint8
	Gas        uint64
	Deposit    big.Int // u128
}

// Transfer moves native balance to the receiver.
type Transfer struct {
	Deposit big.Int // u128
}

// Action is the transaction action enum. Field order fixes the wire tags:
// CreateAccount=0, DeployContract=1, FunctionCall=2, Transfer=3.
type Action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  CreateAccount
	DeployContract DeployContract
	FunctionCall   FunctionCall
	Transfer       Transfer
}

const (
	actionCreateAccount  borsh.Enum = 0
	actionDeployContract borsh.Enum = 1
	actionFunctionCall   borsh.Enum = 2
	actionTransfer       borsh.Enum = 3
)

// NewDeployContractAction wraps contract code for deployment.
func NewDeployContractAction(code []byte) Action {
	return Action{
		Enum:           actionDeployContract,
		DeployContract: DeployContract{Code: code},
	}
}

// NewFunctionCallAction builds a method invocation action.
func NewFunctionCallAction(method string, args []byte, gas uint64, deposit *big.Int) Action {
	return Action{
		Enum: actionFunctionCall,
		FunctionCall: FunctionCall{
			MethodName: method,
			Args:       args,
			Gas:        gas,
			Deposit:    *deposit,
		},
	}
}

// NewTransferAction builds a native balance transfer action.
func NewTransferAction(deposit *big.Int) Action {
	return Action{
		Enum:     actionTransfer,
		Transfer: Transfer{Deposit: *deposit},
	}
}

// Transaction is the unsigned wire transaction.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]uint8
	Actions    []Action
}

// SignedTransaction pairs a transaction with its signature. Its borsh
// serialization is the exact payload the node accepts.
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}
