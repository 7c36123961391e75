package chain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RetryPolicy is a bounded retry schedule for transient RPC failures. It is
// owned by callers of a Verifier: the verifier itself never loops. Only
// rpc_request_failed is retried here; receipt_not_found is returned to the
// client, which polls on its own schedule.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy suits a request-scoped verification: a couple of quick
// retries, then hand the transient failure back to the client.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}

// Verify runs the verifier under the policy. Backoff grows linearly with the
// attempt number and respects context cancellation.
func (p RetryPolicy) Verify(ctx context.Context, v Verifier, txHash, expectedRecipient string, expectedMin decimal.Decimal) (Result, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result Result
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = v.VerifyPayment(ctx, txHash, expectedRecipient, expectedMin)
		if err != nil {
			return result, err
		}
		if result.Reason != ReasonRPCRequestFailed || attempt == attempts {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(p.Backoff * time.Duration(attempt)):
		}
	}
	return result, err
}
