package models

import "time"

type Item struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Unit      string `gorm:"size:20;not null;default:'stem'"` // stem, bunch, box
	Variety   string `gorm:"size:100"`
	Color     string `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
