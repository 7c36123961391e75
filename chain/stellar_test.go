package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/support/render/problem"
	"github.com/stretchr/testify/assert"
)

const (
	stellarTxHash   = "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	stellarMerchant = "GCO7V6V6VZ5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X"
	stellarBuyer    = "GBUYER6VZ5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5X6Z5XA"
)

type MockHorizonClient struct {
	TransactionDetailFunc func(txHash string) (hProtocol.Transaction, error)
	PaymentsFunc          func(request horizonclient.OperationRequest) (operations.OperationsPage, error)
}

func (m *MockHorizonClient) TransactionDetail(txHash string) (hProtocol.Transaction, error) {
	return m.TransactionDetailFunc(txHash)
}

func (m *MockHorizonClient) Payments(request horizonclient.OperationRequest) (operations.OperationsPage, error) {
	return m.PaymentsFunc(request)
}

func paymentsPage(payments ...operations.Payment) operations.OperationsPage {
	var page operations.OperationsPage
	for _, p := range payments {
		page.Embedded.Records = append(page.Embedded.Records, p)
	}
	return page
}

func paymentOp(to, amount string) operations.Payment {
	return operations.Payment{
		Base:   operations.Base{Type: "payment", TransactionHash: stellarTxHash},
		From:   stellarBuyer,
		To:     to,
		Amount: amount,
	}
}

func successfulTx() (hProtocol.Transaction, error) {
	return hProtocol.Transaction{Hash: stellarTxHash, Successful: true}, nil
}

func TestStellarVerifyPaymentPass(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) { return successfulTx() },
		PaymentsFunc: func(request horizonclient.OperationRequest) (operations.OperationsPage, error) {
			return paymentsPage(paymentOp(stellarMerchant, "10.5000000")), nil
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, stellarMerchant, result.ObservedRecipient)
	assert.Equal(t, stellarBuyer, result.FromWallet)
	assert.True(t, result.ObservedAmount.Equal(decimal.RequireFromString("10.5")))
}

func TestStellarVerifyPaymentSumsMultipleOperations(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) { return successfulTx() },
		PaymentsFunc: func(request horizonclient.OperationRequest) (operations.OperationsPage, error) {
			return paymentsPage(
				paymentOp(stellarMerchant, "6.0000000"),
				paymentOp(stellarMerchant, "4.0000000"),
			), nil
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, StatusPass, result.Status)
}

func TestStellarVerifyPaymentRecipientMismatch(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) { return successfulTx() },
		PaymentsFunc: func(request horizonclient.OperationRequest) (operations.OperationsPage, error) {
			return paymentsPage(paymentOp(stellarBuyer, "10.0000000")), nil
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, StatusFail, result.Status)
	assert.Equal(t, ReasonRecipientMismatch, result.Reason)
}

func TestStellarVerifyPaymentAmountInsufficient(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) { return successfulTx() },
		PaymentsFunc: func(request horizonclient.OperationRequest) (operations.OperationsPage, error) {
			return paymentsPage(paymentOp(stellarMerchant, "9.9999999")), nil
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, StatusFail, result.Status)
	assert.Equal(t, ReasonAmountInsufficient, result.Reason)
}

func TestStellarVerifyPaymentNotFound(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) {
			return hProtocol.Transaction{}, &horizonclient.Error{
				Problem: problem.P{
					Type:   "https://stellar.org/horizon-errors/not_found",
					Title:  "Resource Missing",
					Status: 404,
				},
			}
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, ReasonReceiptNotFound, result.Reason)
	assert.True(t, result.Retryable())
}

func TestStellarVerifyPaymentFailedTransaction(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) {
			return hProtocol.Transaction{Hash: stellarTxHash, Successful: false}, nil
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, ReasonReceiptNotFound, result.Reason)
}

func TestStellarVerifyPaymentHorizonDown(t *testing.T) {
	mock := &MockHorizonClient{
		TransactionDetailFunc: func(txHash string) (hProtocol.Transaction, error) {
			return hProtocol.Transaction{}, errors.New("connection refused")
		},
	}
	verifier := NewStellarVerifierWithClient(mock)

	result, err := verifier.VerifyPayment(context.Background(), stellarTxHash, stellarMerchant, decimal.RequireFromString("10"))

	assert.NoError(t, err)
	assert.Equal(t, ReasonRPCRequestFailed, result.Reason)
}

func TestStellarVerifyPaymentMalformedHash(t *testing.T) {
	verifier := NewStellarVerifierWithClient(&MockHorizonClient{})
	_, err := verifier.VerifyPayment(context.Background(), "0xnot-stellar", stellarMerchant, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, ErrMalformedTxHash)
}
