package inventory

import (
	"fmt"
	"strconv"
	"time"

	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/metrics"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreatePriceChangeRequest struct {
	ItemID   uint            `json:"item_id" validate:"required"`
	OldPrice decimal.Decimal `json:"old_price"`
	NewPrice decimal.Decimal `json:"new_price"`
}

type PriceChangeResponse struct {
	ID        uint            `json:"id"`
	ItemID    uint            `json:"item_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangedAt time.Time       `json:"changed_at"`
	ChangedBy uint            `json:"changed_by"`
}

func toPriceChangeResponse(p models.PriceChange) PriceChangeResponse {
	return PriceChangeResponse{
		ID:        p.ID,
		ItemID:    p.ItemID,
		OldPrice:  p.OldPrice,
		NewPrice:  p.NewPrice,
		ChangedAt: p.ChangedAt,
		ChangedBy: p.ChangedBy,
	}
}

// POST /api/transfers/price-changes
func CreatePriceChangeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, userName, storeID, err := getUserInfo(c)
		if err != nil {
			return err
		}

		var body CreatePriceChangeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(body); err != nil {
			return err
		}
		if body.OldPrice.IsNegative() || body.NewPrice.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "prices cannot be negative")
		}

		var item models.Item
		if err := database.DB.First(&item, "id = ?", body.ItemID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "item not found")
		}

		pc := models.PriceChange{
			ItemID:    item.ID,
			OldPrice:  body.OldPrice,
			NewPrice:  body.NewPrice,
			ChangedAt: time.Now(),
			ChangedBy: userID,
		}
		if err := database.DB.Omit("Item").Create(&pc).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "price change could not be saved")
		}
		metrics.PriceChanges.Inc()

		_ = audit.WriteLog(audit.LogOptions{
			StoreID:     storeID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "price_change",
			EntityID:    pc.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("price: %s %s → %s", item.Name, pc.OldPrice.StringFixed(0), pc.NewPrice.StringFixed(0)),
			After:       toPriceChangeResponse(pc),
		})

		return c.Status(fiber.StatusCreated).JSON(toPriceChangeResponse(pc))
	}
}

// GET /api/transfers/price-changes/:item_id (newest first)
func ListPriceChangesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		itemID, err := strconv.Atoi(c.Params("item_id"))
		if err != nil || itemID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid item_id")
		}

		var changes []models.PriceChange
		if err := database.DB.Where("item_id = ?", itemID).
			Order("changed_at desc, id desc").
			Find(&changes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "price history could not be loaded")
		}

		res := make([]PriceChangeResponse, 0, len(changes))
		for _, p := range changes {
			res = append(res, toPriceChangeResponse(p))
		}
		return c.JSON(res)
	}
}

// GET /api/transfers/price-changes-latest → {"<item_id>": new_price}
func LatestPricesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var changes []models.PriceChange
		if err := database.DB.Order("item_id asc, changed_at desc, id desc").Find(&changes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "latest prices could not be loaded")
		}

		latest := make(map[string]decimal.Decimal)
		for _, p := range changes {
			k := strconv.FormatUint(uint64(p.ItemID), 10)
			if _, seen := latest[k]; seen {
				continue
			}
			latest[k] = p.NewPrice
		}
		return c.JSON(latest)
	}
}
