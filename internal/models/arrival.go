package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Arrival: one received lot. RemainingQuantity goes down with every
// transfer and disposal booked against it.
type Arrival struct {
	ID                uint `gorm:"primaryKey"`
	ItemID            uint `gorm:"index;not null"`
	Item              Item
	Quantity          int                 `gorm:"not null"`
	RemainingQuantity int                 `gorm:"not null"`
	WholesalePrice    decimal.NullDecimal `gorm:"type:numeric(12,2)"` // unknown until the invoice is in
	Supplier          string              `gorm:"size:100"`
	Note              string              `gorm:"size:255"`
	ArrivedAt         time.Time           `gorm:"index;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
