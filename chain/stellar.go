package chain

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"
)

var stellarTxHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// HorizonAPI is the subset of horizonclient.Client the verifier needs.
type HorizonAPI interface {
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
	Payments(request horizonclient.OperationRequest) (operations.OperationsPage, error)
}

// StellarVerifier checks payments against a Stellar Horizon endpoint.
// Amounts are in the asset's display units (lumens for XLM).
type StellarVerifier struct {
	client HorizonAPI
}

func NewStellarVerifier(horizonURL string) *StellarVerifier {
	return &StellarVerifier{
		client: &horizonclient.Client{HorizonURL: horizonURL},
	}
}

// NewStellarVerifierWithClient injects a Horizon client, used by tests.
func NewStellarVerifierWithClient(client HorizonAPI) *StellarVerifier {
	return &StellarVerifier{client: client}
}

func (v *StellarVerifier) VerifyPayment(ctx context.Context, txHash, expectedRecipient string, expectedMin decimal.Decimal) (Result, error) {
	if !stellarTxHashPattern.MatchString(txHash) {
		return Result{}, ErrMalformedTxHash
	}

	tx, err := v.client.TransactionDetail(txHash)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return failure(ReasonReceiptNotFound), nil
		}
		return failure(ReasonRPCRequestFailed), nil
	}
	if !tx.Successful {
		return failure(ReasonReceiptNotFound), nil
	}

	page, err := v.client.Payments(horizonclient.OperationRequest{ForTransaction: txHash})
	if err != nil {
		return failure(ReasonRPCRequestFailed), nil
	}

	// A transaction can carry several operations; sum every payment made to
	// the expected recipient and keep the first one seen for reporting.
	total := decimal.Zero
	result := Result{}
	for _, record := range page.Embedded.Records {
		payment, ok := record.(operations.Payment)
		if !ok {
			continue
		}
		if result.ObservedRecipient == "" {
			result.ObservedRecipient = payment.To
			result.FromWallet = payment.From
		}
		if !strings.EqualFold(payment.To, expectedRecipient) {
			continue
		}
		amount, err := decimal.NewFromString(payment.Amount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
		result.ObservedRecipient = payment.To
		result.FromWallet = payment.From
	}

	result.ObservedAmount = total
	if result.ObservedRecipient == "" || !strings.EqualFold(result.ObservedRecipient, expectedRecipient) {
		result.Status = StatusFail
		result.Reason = ReasonRecipientMismatch
		return result, nil
	}
	if total.LessThan(expectedMin) {
		result.Status = StatusFail
		result.Reason = ReasonAmountInsufficient
		return result, nil
	}
	result.Status = StatusPass
	return result, nil
}
