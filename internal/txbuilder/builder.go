package txbuilder

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"

	"github.com/gateway-fm/ftbench/internal/account"
)

// Signed is a signed transaction ready for submission.
type Signed struct {
	// Hash is the base58 transaction hash, the sha256 of the unsigned
	// serialization. Status queries use it.
	Hash string
	// Raw is the serialized signed transaction.
	Raw []byte
}

// Sign serializes tx, signs the digest with the account key and returns the
// submittable payload.
func Sign(tx *Transaction, signer *account.Account) (*Signed, error) {
	unsigned, err := borsh.Serialize(*tx)
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	digest := sha256.Sum256(unsigned)

	st := SignedTransaction{
		Transaction: *tx,
		Signature:   Signature{KeyType: KeyTypeED25519},
	}
	copy(st.Signature.Data[:], ed25519.Sign(signer.PrivateKey, digest[:]))

	raw, err := borsh.Serialize(st)
	if err != nil {
		return nil, fmt.Errorf("serialize signed transaction: %w", err)
	}
	return &Signed{Hash: base58.Encode(digest[:]), Raw: raw}, nil
}

// newTransaction fills the common envelope fields.
func newTransaction(signer *account.Account, receiver string, nonce uint64, blockHash []byte, actions ...Action) (*Transaction, error) {
	if len(blockHash) != 32 {
		return nil, fmt.Errorf("block hash is %d bytes, want 32", len(blockHash))
	}
	tx := &Transaction{
		SignerID:   signer.ID,
		Nonce:      nonce,
		ReceiverID: receiver,
		Actions:    actions,
	}
	tx.PublicKey.KeyType = KeyTypeED25519
	copy(tx.PublicKey.Data[:], signer.PublicKey)
	copy(tx.BlockHash[:], blockHash)
	return tx, nil
}

// SignPayment builds a signed native balance transfer.
func SignPayment(signer *account.Account, receiver string, amount *big.Int, nonce uint64, blockHash []byte) (*Signed, error) {
	tx, err := newTransaction(signer, receiver, nonce, blockHash, NewTransferAction(amount))
	if err != nil {
		return nil, err
	}
	return Sign(tx, signer)
}

// SignFunctionCall builds a signed contract method invocation.
func SignFunctionCall(signer *account.Account, receiver, method string, args []byte, gas uint64, deposit *big.Int, nonce uint64, blockHash []byte) (*Signed, error) {
	tx, err := newTransaction(signer, receiver, nonce, blockHash, NewFunctionCallAction(method, args, gas, deposit))
	if err != nil {
		return nil, err
	}
	return Sign(tx, signer)
}

// SignDeployContract builds a signed code deployment onto the signer's own
// account.
func SignDeployContract(signer *account.Account, code []byte, nonce uint64, blockHash []byte) (*Signed, error) {
	tx, err := newTransaction(signer, signer.ID, nonce, blockHash, NewDeployContractAction(code))
	if err != nil {
		return nil, err
	}
	return Sign(tx, signer)
}
