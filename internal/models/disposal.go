package models

import "time"

type DisposalReason string

const (
	DisposalDamage DisposalReason = "damage"
	DisposalLost   DisposalReason = "lost"
	DisposalOther  DisposalReason = "other"
)

// Disposal: stock written off from an arrival lot
type Disposal struct {
	ID             uint `gorm:"primaryKey"`
	ItemID         uint `gorm:"index;not null"`
	Item           Item
	ArrivalID      *uint `gorm:"index"`
	Arrival        *Arrival
	Quantity       int            `gorm:"not null"`
	Reason         DisposalReason `gorm:"size:20;not null"`
	Note           string         `gorm:"size:500"`
	DisposedAt     time.Time      `gorm:"index;not null"`
	IdempotencyKey *string        `gorm:"size:64;uniqueIndex"`
	CreatedBy      uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
