package models

import (
	"time"
)

// DownloadToken is the persisted side of a signed download credential. The
// JWT carries order/product binding and expiry; the row carries the use
// counter so redemption can be bounded atomically in the store.
type DownloadToken struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	TokenID   string    `gorm:"uniqueIndex;size:36;not null" json:"token_id"`
	OrderID   string    `gorm:"size:36;not null;index" json:"order_id"`
	ProductID string    `gorm:"size:100;not null" json:"product_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	MaxUses   int       `gorm:"not null" json:"max_uses"`
	UseCount  int       `gorm:"not null;default:0" json:"use_count"`
}

// TableName overrides the table name
func (DownloadToken) TableName() string {
	return "download_tokens"
}
