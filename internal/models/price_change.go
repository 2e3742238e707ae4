package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceChange: append-only unit price history per item
type PriceChange struct {
	ID        uint            `gorm:"primaryKey"`
	ItemID    uint            `gorm:"index;not null"`
	Item      Item
	OldPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	NewPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ChangedAt time.Time       `gorm:"index;not null"`
	ChangedBy uint
	CreatedAt time.Time
}
