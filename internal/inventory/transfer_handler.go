package inventory

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/metrics"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errInsufficientStock = fiber.NewError(fiber.StatusBadRequest, "insufficient stock")

type CreateTransferRequest struct {
	StoreID        uint                `json:"store_id" validate:"required"`
	ItemID         uint                `json:"item_id" validate:"required"`
	ArrivalID      *uint               `json:"arrival_id"`
	Quantity       int                 `json:"quantity" validate:"gt=0"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	WholesalePrice decimal.NullDecimal `json:"wholesale_price"`
	TransferredAt  string              `json:"transferred_at"` // "2006-01-02", empty = today
}

type TransferResponse struct {
	ID             uint                `json:"id"`
	StoreID        uint                `json:"store_id"`
	StoreName      string              `json:"store_name"`
	ItemID         uint                `json:"item_id"`
	ItemName       string              `json:"item_name"`
	ArrivalID      *uint               `json:"arrival_id"`
	Quantity       int                 `json:"quantity"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	WholesalePrice decimal.NullDecimal `json:"wholesale_price"`
	Margin         decimal.NullDecimal `json:"margin"`
	TransferredAt  time.Time           `json:"transferred_at"`
	IdempotencyKey *string             `json:"idempotency_key,omitempty"`
}

func toTransferResponse(t models.Transfer) TransferResponse {
	return TransferResponse{
		ID:             t.ID,
		StoreID:        t.StoreID,
		StoreName:      t.Store.Name,
		ItemID:         t.ItemID,
		ItemName:       t.Item.Name,
		ArrivalID:      t.ArrivalID,
		Quantity:       t.Quantity,
		UnitPrice:      t.UnitPrice,
		WholesalePrice: t.WholesalePrice,
		Margin:         t.Margin,
		TransferredAt:  t.TransferredAt,
		IdempotencyKey: t.IdempotencyKey,
	}
}

// decrementArrival takes qty off an arrival lot, refusing to go below zero.
func decrementArrival(tx *gorm.DB, arrivalID uint, qty int) error {
	err := models.TakeArrivalStock(tx, arrivalID, qty)
	if errors.Is(err, models.ErrInsufficientStock) {
		return errInsufficientStock
	}
	return err
}

// loadLot checks that the arrival exists and belongs to itemID.
func loadLot(tx *gorm.DB, arrivalID, itemID uint) (models.Arrival, error) {
	var arrival models.Arrival
	if err := tx.First(&arrival, "id = ?", arrivalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return arrival, fiber.NewError(fiber.StatusBadRequest, "arrival not found")
		}
		return arrival, err
	}
	if arrival.ItemID != itemID {
		return arrival, fiber.NewError(fiber.StatusBadRequest, "arrival does not belong to this item")
	}
	return arrival, nil
}

func transferByKey(key string) (models.Transfer, bool) {
	var tr models.Transfer
	err := database.DB.Preload("Store").Preload("Item").Where("idempotency_key = ?", key).First(&tr).Error
	return tr, err == nil
}

// POST /api/transfers
func CreateTransferHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		key := idempotencyKey(c)
		if key != nil {
			if prev, ok := transferByKey(*key); ok {
				metrics.IdempotentReplays.WithLabelValues("transfer").Inc()
				return c.Status(fiber.StatusOK).JSON(toTransferResponse(prev))
			}
		}

		var body CreateTransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(body); err != nil {
			return err
		}
		if body.UnitPrice.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "unit_price cannot be negative")
		}
		day, err := parseDay(body.TransferredAt)
		if err != nil {
			return err
		}

		tr := models.Transfer{
			StoreID:        body.StoreID,
			ItemID:         body.ItemID,
			ArrivalID:      body.ArrivalID,
			Quantity:       body.Quantity,
			UnitPrice:      body.UnitPrice,
			WholesalePrice: body.WholesalePrice,
			TransferredAt:  day,
			IdempotencyKey: key,
			CreatedBy:      userID,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&tr.Store, "id = ?", tr.StoreID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "store not found")
			}
			if err := tx.First(&tr.Item, "id = ?", tr.ItemID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "item not found")
			}

			if tr.ArrivalID != nil {
				arrival, err := loadLot(tx, *tr.ArrivalID, tr.ItemID)
				if err != nil {
					return err
				}
				if !tr.WholesalePrice.Valid {
					tr.WholesalePrice = arrival.WholesalePrice
				}
				if err := decrementArrival(tx, arrival.ID, tr.Quantity); err != nil {
					return err
				}
			}

			tr.Margin = margin(tr.UnitPrice, tr.WholesalePrice, tr.Quantity)
			return tx.Omit("Store", "Item", "Arrival").Create(&tr).Error
		})
		if err != nil {
			// a concurrent request with the same key won the unique index
			if key != nil {
				if prev, ok := transferByKey(*key); ok {
					metrics.IdempotentReplays.WithLabelValues("transfer").Inc()
					return c.Status(fiber.StatusOK).JSON(toTransferResponse(prev))
				}
			}
			if errors.Is(err, errInsufficientStock) {
				metrics.StockRejections.WithLabelValues("transfer").Inc()
			}
			return asFiberError(err, "transfer could not be saved")
		}

		metrics.TransfersCreated.Inc()
		metrics.TransferredQuantity.Add(float64(tr.Quantity))

		storeID := tr.StoreID
		_ = audit.WriteLog(audit.LogOptions{
			StoreID:     &storeID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "transfer",
			EntityID:    tr.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("transfer: %s x%d → %s", tr.Item.Name, tr.Quantity, tr.Store.Name),
			After:       toTransferResponse(tr),
		})

		return c.Status(fiber.StatusCreated).JSON(toTransferResponse(tr))
	}
}

// GET /api/transfers?date=&store_id=&item_id=
func ListTransfersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.Transfer{}).Preload("Store").Preload("Item")

		if s := c.Query("date"); s != "" {
			day, err := parseDay(s)
			if err != nil {
				return err
			}
			start, end := dayRange(day)
			q = q.Where("transferred_at >= ? AND transferred_at < ?", start, end)
		}
		if s := c.Query("store_id"); s != "" {
			id, err := strconv.Atoi(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid store_id")
			}
			q = q.Where("store_id = ?", id)
		}
		if s := c.Query("item_id"); s != "" {
			id, err := strconv.Atoi(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid item_id")
			}
			q = q.Where("item_id = ?", id)
		}

		var transfers []models.Transfer
		if err := q.Order("transferred_at desc, id desc").Find(&transfers).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "transfers could not be listed")
		}

		res := make([]TransferResponse, 0, len(transfers))
		for _, t := range transfers {
			res = append(res, toTransferResponse(t))
		}
		return c.JSON(res)
	}
}

// DELETE /api/transfers/:id (manager+), gives the quantity back to the arrival
func DeleteTransferHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		var tr models.Transfer
		if err := database.DB.Preload("Store").Preload("Item").First(&tr, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "transfer not found")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if tr.ArrivalID != nil {
				if err := models.ReturnArrivalStock(tx, *tr.ArrivalID, tr.Quantity); err != nil {
					return err
				}
			}
			return tx.Delete(&models.Transfer{}, tr.ID).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "transfer could not be deleted")
		}

		storeID := tr.StoreID
		_ = audit.WriteLog(audit.LogOptions{
			StoreID:     &storeID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "transfer",
			EntityID:    tr.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("transfer deleted: %s x%d → %s", tr.Item.Name, tr.Quantity, tr.Store.Name),
			Before:      toTransferResponse(tr),
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
