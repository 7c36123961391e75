package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/paygate/models"
	"github.com/yourusername/paygate/tokens"
)

// settleOrder walks an order through verification and returns the signed
// download token from the response.
func settleOrder(t *testing.T, env *testEnv, orderID string) string {
	t.Helper()
	w := env.do(http.MethodPost, "/api/v1/payments/verify", VerifyPaymentRequest{
		OrderID: orderID,
		TxHash:  testTxHash,
		ChainID: testChainID,
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token, _ := resp["download_token"].(string)
	assert.NotEmpty(t, token)
	return token
}

func TestRedeemStreamsArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "ebook-go-basics", true, true)
	orderID := env.createOrder(t, "ebook-go-basics")
	token := settleOrder(t, env, orderID)

	w := env.do(http.MethodGet, "/api/v1/download/"+token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "zip-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ebook-go-basics.zip")

	// The redemption is in the audit log.
	var events []models.DownloadEvent
	assert.NoError(t, env.db.Find(&events).Error)
	assert.Len(t, events, 1)
	assert.Equal(t, orderID, events[0].OrderID)
	assert.Equal(t, "ebook-go-basics", events[0].ProductID)
}

// Scenario: a single-use token rejects its second redemption.
func TestRedeemMaxUsesExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "ebook-go-basics", true, true)

	order := &models.Order{
		OrderID:     "single-use-order",
		ProductID:   "ebook-go-basics",
		Status:      models.StatusPaid,
		BuyerWallet: testBuyer,
		ChainID:     testChainID,
	}
	assert.NoError(t, env.store.CreateOrder(order))

	issuer := tokens.NewIssuer(env.cfg.TokenSecret, time.Hour, 1, env.store)
	signed, _, err := issuer.Issue(order)
	assert.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/download/"+signed, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/download/"+signed, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "token_max_uses_exceeded")
}

// Scenario: an expired token is rejected even with uses left.
func TestRedeemExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "ebook-go-basics", true, true)

	order := &models.Order{
		OrderID:     "expired-token-order",
		ProductID:   "ebook-go-basics",
		Status:      models.StatusPaid,
		BuyerWallet: testBuyer,
		ChainID:     testChainID,
	}
	assert.NoError(t, env.store.CreateOrder(order))

	issuer := tokens.NewIssuer(env.cfg.TokenSecret, -time.Minute, 3, env.store)
	signed, _, err := issuer.Issue(order)
	assert.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/download/"+signed, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "token_expired")

	// Nothing reaches the audit log on a refused download.
	var count int64
	env.db.Model(&models.DownloadEvent{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRedeemInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"garbage", "a.b.c"} {
		w := env.do(http.MethodGet, "/api/v1/download/"+token, nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_token")
	}
}

// Scenario: the artifact path is never reachable directly, token or not.
func TestDirectArtifactAccessForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "ebook-go-basics", true, true)
	orderID := env.createOrder(t, "ebook-go-basics")
	settleOrder(t, env, orderID)

	paths := []string{
		"/artifacts/ebook-go-basics/package.zip",
		"/artifacts/anything",
	}
	for _, path := range paths {
		w := env.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "forbidden")
	}
}
