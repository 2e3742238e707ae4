package models

import "time"

// Supply: packaging and sundries kept as a single stock counter
type Supply struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"size:100;not null;unique"`
	Unit          string `gorm:"size:20;not null"`
	StockQuantity int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SupplyTransfer struct {
	ID            uint `gorm:"primaryKey"`
	SupplyID      uint `gorm:"index;not null"`
	Supply        Supply
	StoreID       uint `gorm:"index;not null"`
	Store         Store
	Quantity      int       `gorm:"not null"`
	TransferredAt time.Time `gorm:"index;not null"`
	Note          string    `gorm:"size:255"`
	CreatedBy     uint
	CreatedAt     time.Time
}
