package models

import (
	"errors"

	"gorm.io/gorm"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// TakeArrivalStock takes qty off an arrival lot, refusing to go below zero.
func TakeArrivalStock(tx *gorm.DB, arrivalID uint, qty int) error {
	res := tx.Model(&Arrival{}).
		Where("id = ? AND remaining_quantity >= ?", arrivalID, qty).
		UpdateColumn("remaining_quantity", gorm.Expr("remaining_quantity - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// ReturnArrivalStock gives qty back to an arrival lot.
func ReturnArrivalStock(tx *gorm.DB, arrivalID uint, qty int) error {
	return tx.Model(&Arrival{}).
		Where("id = ?", arrivalID).
		UpdateColumn("remaining_quantity", gorm.Expr("remaining_quantity + ?", qty)).Error
}

func ReturnSupplyStock(tx *gorm.DB, supplyID uint, qty int) error {
	return tx.Model(&Supply{}).
		Where("id = ?", supplyID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty)).Error
}
