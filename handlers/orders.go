package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/paygate/chain"
	"github.com/yourusername/paygate/config"
	"github.com/yourusername/paygate/ledger"
	"github.com/yourusername/paygate/models"
	"github.com/yourusername/paygate/tokens"
	"gorm.io/gorm"
)

type OrderHandler struct {
	store  *ledger.Store
	config *config.Config
	chains *chain.Registry
	issuer *tokens.Issuer
	retry  chain.RetryPolicy
}

func NewOrderHandler(store *ledger.Store, cfg *config.Config, chains *chain.Registry, issuer *tokens.Issuer) *OrderHandler {
	return &OrderHandler{
		store:  store,
		config: cfg,
		chains: chains,
		issuer: issuer,
		retry:  chain.DefaultRetryPolicy,
	}
}

type CreateOrderRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	BuyerWallet string `json:"buyer_wallet" binding:"required"`
}

type VerifyPaymentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	TxHash  string `json:"tx_hash" binding:"required"`
	ChainID string `json:"chain_id"`
}

// CreateOrder opens a purchase attempt in PENDING_PAYMENT. The price, chain,
// and merchant address are fixed here and never change afterwards.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.store.GetProduct(req.ProductID)
	if err != nil {
		if errors.Is(err, ledger.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "product_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}

	// A product is sellable only once the content pipeline has published it
	// and its packaged ZIP is actually on disk.
	if !product.Published {
		c.JSON(http.StatusConflict, gin.H{"error": "Product is not published", "code": "product_not_published"})
		return
	}
	if _, err := os.Stat(h.config.ArtifactPath(product.ProductID)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Product artifact is not ready", "code": "product_not_published"})
		return
	}

	price := product.Price
	if price.IsZero() {
		price = h.config.BasePrice
	}
	chainID := product.ChainID
	if chainID == "" {
		chainID = h.config.DefaultChainID
	}

	order := models.Order{
		OrderID:        uuid.NewString(),
		ProductID:      product.ProductID,
		Status:         models.StatusPendingPayment,
		BuyerWallet:    strings.ToLower(req.BuyerWallet),
		ExpectedAmount: price,
		ChainID:        chainID,
	}

	if err := h.store.CreateOrder(&order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":          order.OrderID,
		"status":            order.Status,
		"expected_amount":   order.ExpectedAmount,
		"chain_id":          order.ChainID,
		"recipient_address": h.config.MerchantAddress,
	})
}

// GetOrder returns the current order state so clients can poll while a
// transaction confirms.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.store.GetOrder(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// VerifyPayment drives the chain verifier and the order state machine.
// Re-submitting a hash that was already verified, for either outcome,
// returns the recorded result without creating new state.
func (h *OrderHandler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.store.GetOrder(req.OrderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if req.ChainID != "" && req.ChainID != order.ChainID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chain does not match the order terms", "code": "chain_mismatch"})
		return
	}

	txHash := strings.ToLower(req.TxHash)

	// Replay of a hash this store has already judged.
	if existing, err := h.store.GetPaymentByTxHash(txHash); err == nil {
		if existing.OrderID != order.OrderID {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Transaction hash is already bound to another order",
				"code":  "duplicate_tx_hash",
			})
			return
		}
		h.respondRecorded(c, order, existing)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up payment"})
		return
	}

	switch order.Status {
	case models.StatusPaid, models.StatusDelivered:
		c.JSON(http.StatusOK, gin.H{"status": "PAID", "order_status": order.Status})
		return
	case models.StatusExpired:
		c.JSON(http.StatusOK, gin.H{"status": "FAILED", "reason": "order_expired", "order_status": order.Status})
		return
	}

	verifier, err := h.chains.For(order.ChainID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "unsupported_chain"})
		return
	}

	result, err := h.retry.Verify(c.Request.Context(), verifier, txHash, h.config.MerchantAddress, order.ExpectedAmount)
	if err != nil {
		if errors.Is(err, chain.ErrMalformedTxHash) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed transaction hash", "code": "malformed_tx_hash"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
		return
	}

	// Transient outcomes are reported but never recorded: the same hash may
	// pass once the transaction confirms.
	if result.Retryable() {
		c.JSON(http.StatusOK, gin.H{"status": "PENDING", "reason": result.Reason, "order_status": order.Status})
		return
	}

	record := &models.PaymentRecord{
		TxHash:     txHash,
		OrderID:    order.OrderID,
		FromWallet: result.FromWallet,
		ToWallet:   result.ObservedRecipient,
		Value:      result.ObservedAmount,
		ChainID:    order.ChainID,
		Result:     models.VerificationPass,
	}
	if result.Status == chain.StatusFail {
		record.Result = models.VerificationFail
		record.Reason = result.Reason
	}

	stored, created, err := h.store.UpsertPayment(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return
	}
	if !created {
		// A concurrent request inserted this hash first.
		if stored.OrderID != order.OrderID {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Transaction hash is already bound to another order",
				"code":  "duplicate_tx_hash",
			})
			return
		}
		h.respondRecorded(c, order, stored)
		return
	}

	if stored.Result == models.VerificationFail {
		c.JSON(http.StatusOK, gin.H{"status": "FAILED", "reason": stored.Reason, "order_status": order.Status})
		return
	}

	h.settle(c, order, txHash)
}

// settle moves a verified order through PAID and token issuance to
// DELIVERED. The PAID transition is a compare-and-set: the loser of a race
// observes the winner's outcome. An order found already PAID resumes at
// issuance, so a settlement interrupted after MarkPaid completes on replay.
func (h *OrderHandler) settle(c *gin.Context, order *models.Order, txHash string) {
	if err := h.store.MarkPaid(order.OrderID, txHash, time.Now()); err != nil {
		if !errors.Is(err, ledger.ErrInvalidTransition) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
			return
		}
		// Lost the compare-and-set: a concurrent verify settled the order,
		// the sweeper expired it, or a previous attempt paid it and stopped
		// before issuing a token.
		current, err := h.store.GetOrder(order.OrderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload order"})
			return
		}
		switch current.Status {
		case models.StatusDelivered:
			c.JSON(http.StatusOK, gin.H{"status": "PAID", "order_status": current.Status})
			return
		case models.StatusPaid:
			// Resume issuance below.
		default:
			c.JSON(http.StatusOK, gin.H{"status": "FAILED", "reason": "order_expired", "order_status": current.Status})
			return
		}
	}

	paid, err := h.store.GetOrder(order.OrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload order"})
		return
	}

	signed, token, err := h.issuer.Issue(paid)
	if err != nil {
		// The order stays PAID; issuance can be retried out of band.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue download token"})
		return
	}

	if err := h.store.MarkDelivered(paid.OrderID, token.TokenID); err != nil && !errors.Is(err, ledger.ErrInvalidTransition) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "PAID",
		"order_status":   models.StatusDelivered,
		"download_token": signed,
		"expires_at":     token.ExpiresAt,
		"max_uses":       token.MaxUses,
	})
}

// respondRecorded replays a previously recorded verification outcome. A PASS
// record whose order never reached DELIVERED marks a settlement that was
// interrupted between recording the payment and transitioning the order;
// replaying the hash re-enters settle, which the guarded transitions make
// idempotent, instead of echoing a state that never completed.
func (h *OrderHandler) respondRecorded(c *gin.Context, order *models.Order, record *models.PaymentRecord) {
	if record.Result == models.VerificationPass {
		if order.Status == models.StatusDelivered {
			c.JSON(http.StatusOK, gin.H{"status": "PAID", "order_status": order.Status})
			return
		}
		h.settle(c, order, record.TxHash)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "FAILED", "reason": record.Reason, "order_status": order.Status})
}
