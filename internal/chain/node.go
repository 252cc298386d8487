// Package chain provides the node-facing client used to submit transactions
// and track their status.
package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr-tron/base58"

	"github.com/gateway-fm/ftbench/internal/rpc"
)

// Verdict classifies a transaction status response.
type Verdict int

const (
	// VerdictUnknown means the node does not know the transaction. It may
	// have been dropped, or it may not have reached this node yet.
	VerdictUnknown Verdict = iota
	// VerdictPending means the node affirmed the transaction is in progress.
	VerdictPending
	VerdictSuccess
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "pending"
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// TxStatus is the outcome of a transaction status query.
type TxStatus struct {
	Verdict Verdict
	// FailureReason carries the node-reported failure payload when the
	// verdict is VerdictFailure.
	FailureReason string
}

// NodeVersion identifies the node build.
type NodeVersion struct {
	Version string `json:"version"`
	Build   string `json:"build"`
}

// NodeStatus is the subset of the node status response the benchmark reads.
type NodeStatus struct {
	ChainID  string      `json:"chain_id"`
	Version  NodeVersion `json:"version"`
	SyncInfo struct {
		LatestBlockHeight uint64 `json:"latest_block_height"`
		Syncing           bool   `json:"syncing"`
	} `json:"sync_info"`
}

// Node is the network-facing endpoint used by the workers and the driver.
type Node interface {
	// BroadcastTxAsync submits a signed transaction without waiting for
	// execution and returns the node-reported transaction hash.
	BroadcastTxAsync(ctx context.Context, signed []byte) (string, error)

	// TxStatus queries the status of a previously submitted transaction.
	// A transaction the node does not know yields VerdictUnknown, not an
	// error; errors are reserved for transport-level trouble.
	TxStatus(ctx context.Context, hash, signerID string) (TxStatus, error)

	// LatestBlockHash returns the hash of the latest final block.
	LatestBlockHash(ctx context.Context) ([]byte, error)

	// AccessKeyNonce returns the on-chain nonce of an access key.
	AccessKeyNonce(ctx context.Context, accountID, publicKey string) (uint64, error)

	// CallFunction performs a read-only contract call and returns the raw
	// result bytes.
	CallFunction(ctx context.Context, accountID, method string, args []byte) ([]byte, error)

	// Status probes the node.
	Status(ctx context.Context) (*NodeStatus, error)

	// URL returns the endpoint this node is reached at.
	URL() string
}

// Observer receives per-call RPC telemetry. Implementations must be cheap;
// they run on the worker hot path.
type Observer interface {
	ObserveRPC(method, status string, elapsed time.Duration)
}

// Error cause names reported by the node for status queries.
const (
	causeUnknownTx = "UNKNOWN_TRANSACTION"
	causeTimeout   = "TIMEOUT_ERROR"
	causeInvalidTx = "INVALID_TRANSACTION"
)

// HTTPNode implements Node over a JSON-RPC client.
type HTTPNode struct {
	client rpc.Client
	obs    Observer
	logger *slog.Logger
}

// NewHTTPNode wraps a JSON-RPC client. obs may be nil.
func NewHTTPNode(client rpc.Client, obs Observer, logger *slog.Logger) *HTTPNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPNode{client: client, obs: obs, logger: logger}
}

// URL returns the endpoint this node is reached at.
func (n *HTTPNode) URL() string {
	return n.client.URL()
}

// call runs one RPC and feeds the observer.
func (n *HTTPNode) call(ctx context.Context, method string, params, result any) error {
	start := time.Now()
	err := n.client.Call(ctx, method, params, result)
	if n.obs != nil {
		status := "ok"
		if err != nil {
			if _, isRPC := err.(*rpc.RPCError); isRPC {
				status = "rpc_error"
			} else {
				status = "transport_error"
			}
		}
		n.obs.ObserveRPC(method, status, time.Since(start))
	}
	return err
}

// BroadcastTxAsync submits a signed transaction.
func (n *HTTPNode) BroadcastTxAsync(ctx context.Context, signed []byte) (string, error) {
	var hash string
	params := []any{base64.StdEncoding.EncodeToString(signed)}
	if err := n.call(ctx, "broadcast_tx_async", params, &hash); err != nil {
		return "", fmt.Errorf("broadcast_tx_async: %w", err)
	}
	return hash, nil
}

// txResult is the subset of the transaction status response we read.
type txResult struct {
	Status json.RawMessage `json:"status"`
}

// TxStatus queries transaction status and maps the response to a verdict.
func (n *HTTPNode) TxStatus(ctx context.Context, hash, signerID string) (TxStatus, error) {
	var result txResult
	err := n.call(ctx, "tx", []any{hash, signerID}, &result)
	if err != nil {
		rpcErr, isRPC := err.(*rpc.RPCError)
		if !isRPC {
			return TxStatus{}, fmt.Errorf("tx %s: %w", hash, err)
		}
		switch rpcErr.CauseName() {
		case causeUnknownTx, causeTimeout:
			// The node does not know the transaction (yet).
			return TxStatus{Verdict: VerdictUnknown}, nil
		case causeInvalidTx:
			return TxStatus{Verdict: VerdictFailure, FailureReason: rpcErr.Error()}, nil
		default:
			// Any other node-reported error is a definite rejection.
			return TxStatus{Verdict: VerdictFailure, FailureReason: rpcErr.Error()}, nil
		}
	}
	return parseExecutionStatus(result.Status)
}

// parseExecutionStatus maps the execution status field to a verdict.
// The field is either a bare string ("NotStarted", "Started") or an object
// keyed by the final outcome ("SuccessValue", "SuccessReceiptId", "Failure").
func parseExecutionStatus(raw json.RawMessage) (TxStatus, error) {
	if len(raw) == 0 {
		return TxStatus{Verdict: VerdictPending}, nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "NotStarted", "Started":
			return TxStatus{Verdict: VerdictPending}, nil
		default:
			return TxStatus{}, fmt.Errorf("unexpected execution status %q", name)
		}
	}

	var outcome map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return TxStatus{}, fmt.Errorf("malformed execution status: %w", err)
	}
	if _, ok := outcome["SuccessValue"]; ok {
		return TxStatus{Verdict: VerdictSuccess}, nil
	}
	if _, ok := outcome["SuccessReceiptId"]; ok {
		return TxStatus{Verdict: VerdictSuccess}, nil
	}
	if failure, ok := outcome["Failure"]; ok {
		return TxStatus{Verdict: VerdictFailure, FailureReason: string(failure)}, nil
	}
	return TxStatus{}, fmt.Errorf("unexpected execution status object: %s", raw)
}

// blockResult is the subset of the block response we read.
type blockResult struct {
	Header struct {
		Hash   string `json:"hash"`
		Height uint64 `json:"height"`
	} `json:"header"`
}

// LatestBlockHash returns the hash of the latest final block.
func (n *HTTPNode) LatestBlockHash(ctx context.Context) ([]byte, error) {
	var result blockResult
	params := map[string]string{"finality": "final"}
	if err := n.call(ctx, "block", params, &result); err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	hash, err := base58.Decode(result.Header.Hash)
	if err != nil {
		return nil, fmt.Errorf("decode block hash %q: %w", result.Header.Hash, err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("block hash is %d bytes, want 32", len(hash))
	}
	return hash, nil
}

// accessKeyResult is the subset of the view_access_key response we read.
// Query errors for missing keys come back inside the result body.
type accessKeyResult struct {
	Nonce uint64 `json:"nonce"`
	Error string `json:"error"`
}

// AccessKeyNonce returns the on-chain nonce of the given access key.
func (n *HTTPNode) AccessKeyNonce(ctx context.Context, accountID, publicKey string) (uint64, error) {
	params := map[string]string{
		"request_type": "view_access_key",
		"finality":     "optimistic",
		"account_id":   accountID,
		"public_key":   publicKey,
	}
	var result accessKeyResult
	if err := n.call(ctx, "query", params, &result); err != nil {
		return 0, fmt.Errorf("view_access_key %s: %w", accountID, err)
	}
	if result.Error != "" {
		return 0, fmt.Errorf("view_access_key %s: %s", accountID, result.Error)
	}
	return result.Nonce, nil
}

// callFunctionRequest is the named-parameter form of a view call.
type callFunctionRequest struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

// callFunctionResult carries the result bytes as a JSON array of numbers.
type callFunctionResult struct {
	Result []int  `json:"result"`
	Error  string `json:"error"`
}

// CallFunction performs a read-only contract call.
func (n *HTTPNode) CallFunction(ctx context.Context, accountID, method string, args []byte) ([]byte, error) {
	params := callFunctionRequest{
		RequestType: "call_function",
		Finality:    "final",
		AccountID:   accountID,
		MethodName:  method,
		ArgsBase64:  base64.StdEncoding.EncodeToString(args),
	}
	var result callFunctionResult
	if err := n.call(ctx, "query", params, &result); err != nil {
		return nil, fmt.Errorf("call_function %s.%s: %w", accountID, method, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("call_function %s.%s: %s", accountID, method, result.Error)
	}
	out := make([]byte, len(result.Result))
	for i, b := range result.Result {
		out[i] = byte(b)
	}
	return out, nil
}

// Status probes the node.
func (n *HTTPNode) Status(ctx context.Context) (*NodeStatus, error) {
	var result NodeStatus
	if err := n.call(ctx, "status", []any{}, &result); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &result, nil
}
