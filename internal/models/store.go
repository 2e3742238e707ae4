package models

import "time"

// Store: transfer destination, shown as a grid column ordered by SortOrder
type Store struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Color     string `gorm:"size:20"` // "#e91e63"
	SortOrder int    `gorm:"not null;default:0;index"`
	Address   string `gorm:"size:255"`
	Phone     string `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
