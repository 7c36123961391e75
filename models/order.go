package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of a purchase attempt.
type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	StatusPaid           OrderStatus = "PAID"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusExpired        OrderStatus = "EXPIRED"
	StatusFailed         OrderStatus = "FAILED"
)

// statusRank orders the lifecycle so transitions only ever move forward.
// Terminal states share no outgoing edges.
var statusRank = map[OrderStatus]int{
	StatusPendingPayment: 0,
	StatusPaid:           1,
	StatusDelivered:      2,
	StatusExpired:        2,
	StatusFailed:         2,
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. EXPIRED and FAILED are only reachable from PENDING_PAYMENT.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	if next == StatusExpired || next == StatusFailed {
		return s == StatusPendingPayment
	}
	if next == StatusDelivered {
		return s == StatusPaid
	}
	return to == from+1
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusExpired || s == StatusFailed
}

type Order struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
	OrderID        string          `gorm:"uniqueIndex;size:36;not null" json:"order_id"`
	ProductID      string          `gorm:"size:100;not null;index" json:"product_id"`
	Status         OrderStatus     `gorm:"size:20;not null;default:'PENDING_PAYMENT';index" json:"status"`
	BuyerWallet    string          `gorm:"size:100;not null" json:"buyer_wallet"`
	ExpectedAmount decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"expected_amount"`
	ChainID        string          `gorm:"size:30;not null" json:"chain_id"`
	PaidAt         *time.Time      `json:"paid_at"`
	TxHash         string          `gorm:"size:128" json:"tx_hash,omitempty"`
	TokenID        string          `gorm:"size:36" json:"download_token_id,omitempty"`
}

// TableName overrides the table name
func (Order) TableName() string {
	return "orders"
}
