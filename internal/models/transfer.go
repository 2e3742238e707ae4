package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer: stock sent from an arrival lot to a store
type Transfer struct {
	ID             uint `gorm:"primaryKey"`
	StoreID        uint `gorm:"index;not null"`
	Store          Store
	ItemID         uint `gorm:"index;not null"`
	Item           Item
	ArrivalID      *uint `gorm:"index"`
	Arrival        *Arrival
	Quantity       int                 `gorm:"not null"`
	UnitPrice      decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	WholesalePrice decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Margin         decimal.NullDecimal `gorm:"type:numeric(14,2)"` // (unit - wholesale) * qty
	TransferredAt  time.Time           `gorm:"index;not null"`
	IdempotencyKey *string             `gorm:"size:64;uniqueIndex"`
	CreatedBy      uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
