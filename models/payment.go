package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationResult is the recorded outcome of checking a transaction
// against the terms of an order.
type VerificationResult string

const (
	VerificationPass VerificationResult = "PASS"
	VerificationFail VerificationResult = "FAIL"
)

// PaymentRecord is the append-only record of a verified on-chain
// transaction. TxHash is the natural key: a hash that has produced a PASS is
// consumed globally and can never satisfy a second order.
type PaymentRecord struct {
	ID         uint               `gorm:"primaryKey" json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
	TxHash     string             `gorm:"uniqueIndex;size:128;not null" json:"tx_hash"`
	OrderID    string             `gorm:"size:36;not null;index" json:"order_id"`
	FromWallet string             `gorm:"size:100" json:"from_wallet"`
	ToWallet   string             `gorm:"size:100" json:"to_wallet"`
	Value      decimal.Decimal    `gorm:"type:decimal(38,18)" json:"value"`
	ChainID    string             `gorm:"size:30;not null" json:"chain_id"`
	Result     VerificationResult `gorm:"size:10;not null" json:"verification_result"`
	Reason     string             `gorm:"size:40" json:"reason,omitempty"`
}

// TableName overrides the table name
func (PaymentRecord) TableName() string {
	return "payments"
}
