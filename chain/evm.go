package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var evmTxHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// EVMVerifier checks payments on Ethereum-style chains through the JSON-RPC
// methods eth_getTransactionByHash and eth_getTransactionReceipt. Amounts
// are wei.
type EVMVerifier struct {
	rpcURL string
	client *http.Client
}

func NewEVMVerifier(rpcURL string, timeout time.Duration) *EVMVerifier {
	return &EVMVerifier{
		rpcURL: rpcURL,
		client: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcTransaction struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	BlockNumber *string `json:"blockNumber"`
}

type rpcReceipt struct {
	Status      string  `json:"status"`
	BlockNumber *string `json:"blockNumber"`
}

func (v *EVMVerifier) VerifyPayment(ctx context.Context, txHash, expectedRecipient string, expectedMin decimal.Decimal) (Result, error) {
	if !evmTxHashPattern.MatchString(txHash) {
		return Result{}, fmt.Errorf("%w: %q", ErrMalformedTxHash, txHash)
	}

	var tx rpcTransaction
	found, err := v.call(ctx, "eth_getTransactionByHash", txHash, &tx)
	if err != nil {
		return failure(ReasonRPCRequestFailed), nil
	}
	if !found || tx.BlockNumber == nil {
		// Not mined yet; the caller polls.
		return failure(ReasonReceiptNotFound), nil
	}

	var receipt rpcReceipt
	found, err = v.call(ctx, "eth_getTransactionReceipt", txHash, &receipt)
	if err != nil {
		return failure(ReasonRPCRequestFailed), nil
	}
	if !found || !strings.EqualFold(receipt.Status, "0x1") {
		return failure(ReasonReceiptNotFound), nil
	}

	amount, err := parseHexWei(tx.Value)
	if err != nil {
		return failure(ReasonRPCRequestFailed), nil
	}

	result := Result{
		ObservedAmount:    amount,
		ObservedRecipient: strings.ToLower(tx.To),
		FromWallet:        strings.ToLower(tx.From),
	}
	if !strings.EqualFold(tx.To, expectedRecipient) {
		result.Status = StatusFail
		result.Reason = ReasonRecipientMismatch
		return result, nil
	}
	if amount.LessThan(expectedMin) {
		result.Status = StatusFail
		result.Reason = ReasonAmountInsufficient
		return result, nil
	}
	result.Status = StatusPass
	return result, nil
}

// call posts one JSON-RPC request. found is false when the node returned a
// null result (unknown hash).
func (v *EVMVerifier) call(ctx context.Context, method, txHash string, out interface{}) (bool, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{txHash},
		ID:      1,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.rpcURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return false, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return false, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return false, fmt.Errorf("failed to decode rpc result: %w", err)
	}
	return true, nil
}

func parseHexWei(value string) (decimal.Decimal, error) {
	raw := strings.TrimPrefix(value, "0x")
	if raw == "" {
		return decimal.Zero, nil
	}
	n, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("invalid hex value %q", value)
	}
	return decimal.NewFromBigInt(n, 0), nil
}
