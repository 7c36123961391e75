package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the outcome of a payment verification query.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Reason codes for failed verifications. These are the exact strings
// surfaced to API clients.
const (
	ReasonReceiptNotFound    = "receipt_not_found"
	ReasonRecipientMismatch  = "recipient_mismatch"
	ReasonAmountInsufficient = "amount_insufficient"
	ReasonRPCRequestFailed   = "rpc_request_failed"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrMalformedTxHash  = errors.New("malformed transaction hash")
)

// Result is the structured outcome of a verification. A FAIL carries one of
// the reason codes above; Retryable reports whether the same hash may still
// pass later (not yet mined, or the RPC endpoint misbehaved).
type Result struct {
	Status            Status
	Reason            string
	ObservedAmount    decimal.Decimal
	ObservedRecipient string
	FromWallet        string
}

// Retryable reports whether the failure is transient rather than a
// definitive rejection of the transaction.
func (r Result) Retryable() bool {
	return r.Status == StatusFail &&
		(r.Reason == ReasonReceiptNotFound || r.Reason == ReasonRPCRequestFailed)
}

func failure(reason string) Result {
	return Result{Status: StatusFail, Reason: reason}
}

// Verifier answers whether a transaction pays at least expectedMin to
// expectedRecipient. It is a pure query: it never mutates anything, and all
// failure modes are reported in the Result rather than raised. The returned
// error is reserved for caller mistakes (malformed hash).
type Verifier interface {
	VerifyPayment(ctx context.Context, txHash, expectedRecipient string, expectedMin decimal.Decimal) (Result, error)
}

// Registry maps chain IDs to their verifier, selected once at startup from
// configuration.
type Registry struct {
	verifiers map[string]Verifier
}

func NewRegistry(verifiers map[string]Verifier) *Registry {
	return &Registry{verifiers: verifiers}
}

// For returns the verifier for a chain ID, or ErrUnsupportedChain.
func (r *Registry) For(chainID string) (Verifier, error) {
	v, ok := r.verifiers[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, chainID)
	}
	return v, nil
}

// Supported reports whether a chain ID has a configured verifier.
func (r *Registry) Supported(chainID string) bool {
	_, ok := r.verifiers[chainID]
	return ok
}
