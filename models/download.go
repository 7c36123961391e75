package models

import (
	"time"
)

// DownloadEvent is one row of the append-only download audit log. Rows are
// never updated or deleted.
type DownloadEvent struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	TokenID    string    `gorm:"size:36;not null;index" json:"token_id"`
	OrderID    string    `gorm:"size:36;not null;index" json:"order_id"`
	ProductID  string    `gorm:"size:100;not null" json:"product_id"`
	RemoteAddr string    `gorm:"size:64" json:"remote_addr"`
	UserAgent  string    `gorm:"size:255" json:"user_agent"`
}

// TableName overrides the table name
func (DownloadEvent) TableName() string {
	return "downloads"
}
