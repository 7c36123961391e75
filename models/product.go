package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable packaged artifact. The content pipeline owns these
// rows and flips Published once QA passes and the package ZIP exists; the
// gateway only ever reads them.
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
	ProductID string          `gorm:"uniqueIndex;size:100;not null" json:"product_id"`
	Title     string          `gorm:"size:255" json:"title"`
	Price     decimal.Decimal `gorm:"type:decimal(38,18)" json:"price"`
	ChainID   string          `gorm:"size:30" json:"chain_id,omitempty"`
	Published bool            `gorm:"default:false" json:"published"`
}

// TableName overrides the table name
func (Product) TableName() string {
	return "products"
}
