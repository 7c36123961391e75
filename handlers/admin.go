package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/paygate/models"
)

// MarkPaid is the manual payment path for local development: it settles an
// order without touching a chain. The route is registered only outside
// production (see main.go); production config cannot reach it.
func (h *OrderHandler) MarkPaid(c *gin.Context) {
	order, err := h.store.GetOrder(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if order.Status != models.StatusPendingPayment {
		c.JSON(http.StatusConflict, gin.H{"error": "Order is not pending payment", "code": "order_not_pending"})
		return
	}

	// Synthetic hash keeps the tx_hash natural key unique per order.
	txHash := "manual-" + order.OrderID
	record := &models.PaymentRecord{
		TxHash:   txHash,
		OrderID:  order.OrderID,
		ToWallet: h.config.MerchantAddress,
		Value:    order.ExpectedAmount,
		ChainID:  order.ChainID,
		Result:   models.VerificationPass,
		Reason:   "manual_override",
	}
	if _, _, err := h.store.UpsertPayment(record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return
	}

	h.settle(c, order, txHash)
}
