package inventory

import (
	"errors"
	"fmt"
	"time"

	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/metrics"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateDisposalRequest struct {
	ItemID     uint   `json:"item_id" validate:"required"`
	ArrivalID  *uint  `json:"arrival_id"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	Reason     string `json:"reason" validate:"required,oneof=damage lost other"`
	Note       string `json:"note" validate:"max=500"`
	DisposedAt string `json:"disposed_at"`
}

type DisposalResponse struct {
	ID             uint                  `json:"id"`
	ItemID         uint                  `json:"item_id"`
	ItemName       string                `json:"item_name"`
	ArrivalID      *uint                 `json:"arrival_id"`
	Quantity       int                   `json:"quantity"`
	Reason         models.DisposalReason `json:"reason"`
	Note           string                `json:"note"`
	DisposedAt     time.Time             `json:"disposed_at"`
	IdempotencyKey *string               `json:"idempotency_key,omitempty"`
}

func toDisposalResponse(d models.Disposal) DisposalResponse {
	return DisposalResponse{
		ID:             d.ID,
		ItemID:         d.ItemID,
		ItemName:       d.Item.Name,
		ArrivalID:      d.ArrivalID,
		Quantity:       d.Quantity,
		Reason:         d.Reason,
		Note:           d.Note,
		DisposedAt:     d.DisposedAt,
		IdempotencyKey: d.IdempotencyKey,
	}
}

func disposalByKey(key string) (models.Disposal, bool) {
	var d models.Disposal
	err := database.DB.Preload("Item").Where("idempotency_key = ?", key).First(&d).Error
	return d, err == nil
}

// POST /api/disposals
func CreateDisposalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, userName, storeID, err := getUserInfo(c)
		if err != nil {
			return err
		}

		key := idempotencyKey(c)
		if key != nil {
			if prev, ok := disposalByKey(*key); ok {
				metrics.IdempotentReplays.WithLabelValues("disposal").Inc()
				return c.Status(fiber.StatusOK).JSON(toDisposalResponse(prev))
			}
		}

		var body CreateDisposalRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(body); err != nil {
			return err
		}
		day, err := parseDay(body.DisposedAt)
		if err != nil {
			return err
		}

		d := models.Disposal{
			ItemID:         body.ItemID,
			ArrivalID:      body.ArrivalID,
			Quantity:       body.Quantity,
			Reason:         models.DisposalReason(body.Reason),
			Note:           body.Note,
			DisposedAt:     day,
			IdempotencyKey: key,
			CreatedBy:      userID,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&d.Item, "id = ?", d.ItemID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "item not found")
			}
			if d.ArrivalID != nil {
				if _, err := loadLot(tx, *d.ArrivalID, d.ItemID); err != nil {
					return err
				}
				if err := decrementArrival(tx, *d.ArrivalID, d.Quantity); err != nil {
					return err
				}
			}
			return tx.Omit("Item", "Arrival").Create(&d).Error
		})
		if err != nil {
			// a concurrent request with the same key won the unique index
			if key != nil {
				if prev, ok := disposalByKey(*key); ok {
					metrics.IdempotentReplays.WithLabelValues("disposal").Inc()
					return c.Status(fiber.StatusOK).JSON(toDisposalResponse(prev))
				}
			}
			if errors.Is(err, errInsufficientStock) {
				metrics.StockRejections.WithLabelValues("disposal").Inc()
			}
			return asFiberError(err, "disposal could not be saved")
		}

		metrics.DisposalsCreated.WithLabelValues(string(d.Reason)).Inc()

		_ = audit.WriteLog(audit.LogOptions{
			StoreID:     storeID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "disposal",
			EntityID:    d.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("disposal (%s): %s x%d", d.Reason, d.Item.Name, d.Quantity),
			After:       toDisposalResponse(d),
		})

		return c.Status(fiber.StatusCreated).JSON(toDisposalResponse(d))
	}
}

// GET /api/disposals?date_from=&date_to=
func ListDisposalsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.Disposal{}).Preload("Item")

		if s := c.Query("date_from"); s != "" {
			from, err := parseDay(s)
			if err != nil {
				return err
			}
			q = q.Where("disposed_at >= ?", from)
		}
		if s := c.Query("date_to"); s != "" {
			to, err := parseDay(s)
			if err != nil {
				return err
			}
			_, end := dayRange(to)
			q = q.Where("disposed_at < ?", end)
		}

		var disposals []models.Disposal
		if err := q.Order("disposed_at desc, id desc").Find(&disposals).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "disposals could not be listed")
		}

		res := make([]DisposalResponse, 0, len(disposals))
		for _, d := range disposals {
			res = append(res, toDisposalResponse(d))
		}
		return c.JSON(res)
	}
}
