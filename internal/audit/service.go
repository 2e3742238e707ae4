package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAlreadyUndone = errors.New("this action has already been undone")
	ErrNotUndoable   = errors.New("this action cannot be undone")
	ErrEntityGone    = errors.New("the record no longer exists")
)

type LogOptions struct {
	StoreID     *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func WriteLog(opts LogOptions) error {
	// jsonb rejects empty strings
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	entry := models.AuditLog{
		StoreID:     opts.StoreID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := database.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit log could not be saved: %w", err)
	}

	return nil
}

// UndoLog reverts the change recorded by log logID, marks the log as undone
// and writes an undo log. Stock taken by a transfer, disposal or supply
// transfer is given back; a deleted transfer is booked again.
func UndoLog(logID uint, userID uint, userName string) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		var entry models.AuditLog
		if err := tx.First(&entry, "id = ?", logID).Error; err != nil {
			return err
		}
		if entry.IsUndone {
			return ErrAlreadyUndone
		}
		if entry.Action == models.AuditActionUndo {
			return ErrNotUndoable
		}

		entityID, err := revertEntity(tx, entry, userID)
		if err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.AuditLog{}).
			Where("id = ? AND is_undone = ?", entry.ID, false).
			Updates(map[string]any{"is_undone": true, "undone_by": userID, "undone_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyUndone
		}

		undo := models.AuditLog{
			StoreID:     entry.StoreID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  entry.EntityType,
			EntityID:    entityID,
			Action:      models.AuditActionUndo,
			Description: truncate("undone: "+entry.Description, 255),
			BeforeData:  entry.AfterData,
			AfterData:   entry.BeforeData,
		}
		if err := tx.Create(&undo).Error; err != nil {
			return fmt.Errorf("undo log could not be saved: %w", err)
		}
		return nil
	})
}

// revertEntity returns the id of the entity the undo touched.
func revertEntity(tx *gorm.DB, entry models.AuditLog, userID uint) (uint, error) {
	switch entry.Action {
	case models.AuditActionCreate:
		return entry.EntityID, deleteEntity(tx, entry.EntityType, entry.EntityID)
	case models.AuditActionDelete:
		return recreateEntity(tx, entry.EntityType, entry.BeforeData, userID)
	}
	return 0, ErrNotUndoable
}

func deleteEntity(tx *gorm.DB, entityType string, entityID uint) error {
	switch entityType {
	case "transfer":
		var tr models.Transfer
		if err := tx.First(&tr, "id = ?", entityID).Error; err != nil {
			return ErrEntityGone
		}
		if tr.ArrivalID != nil {
			if err := models.ReturnArrivalStock(tx, *tr.ArrivalID, tr.Quantity); err != nil {
				return err
			}
		}
		return tx.Delete(&models.Transfer{}, tr.ID).Error

	case "disposal":
		var d models.Disposal
		if err := tx.First(&d, "id = ?", entityID).Error; err != nil {
			return ErrEntityGone
		}
		if d.ArrivalID != nil {
			if err := models.ReturnArrivalStock(tx, *d.ArrivalID, d.Quantity); err != nil {
				return err
			}
		}
		return tx.Delete(&models.Disposal{}, d.ID).Error

	case "supply_transfer":
		var st models.SupplyTransfer
		if err := tx.First(&st, "id = ?", entityID).Error; err != nil {
			return ErrEntityGone
		}
		if err := models.ReturnSupplyStock(tx, st.SupplyID, st.Quantity); err != nil {
			return err
		}
		return tx.Delete(&models.SupplyTransfer{}, st.ID).Error
	}
	return ErrNotUndoable
}

// transferSnapshot matches the transfer JSON written into audit logs.
type transferSnapshot struct {
	StoreID        uint                `json:"store_id"`
	ItemID         uint                `json:"item_id"`
	ArrivalID      *uint               `json:"arrival_id"`
	Quantity       int                 `json:"quantity"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	WholesalePrice decimal.NullDecimal `json:"wholesale_price"`
	Margin         decimal.NullDecimal `json:"margin"`
	TransferredAt  time.Time           `json:"transferred_at"`
}

func recreateEntity(tx *gorm.DB, entityType string, dataJSON string, userID uint) (uint, error) {
	if entityType != "transfer" {
		return 0, ErrNotUndoable
	}
	var snap transferSnapshot
	if err := json.Unmarshal([]byte(dataJSON), &snap); err != nil || snap.Quantity <= 0 {
		return 0, ErrNotUndoable
	}
	if snap.ArrivalID != nil {
		if err := models.TakeArrivalStock(tx, *snap.ArrivalID, snap.Quantity); err != nil {
			return 0, err
		}
	}
	tr := models.Transfer{
		StoreID:        snap.StoreID,
		ItemID:         snap.ItemID,
		ArrivalID:      snap.ArrivalID,
		Quantity:       snap.Quantity,
		UnitPrice:      snap.UnitPrice,
		WholesalePrice: snap.WholesalePrice,
		Margin:         snap.Margin,
		TransferredAt:  snap.TransferredAt,
		CreatedBy:      userID,
	}
	if err := tx.Omit("Store", "Item", "Arrival").Create(&tr).Error; err != nil {
		return 0, err
	}
	return tr.ID, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
