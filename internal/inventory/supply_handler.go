package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/metrics"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SupplyResponse struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Unit          string `json:"unit"`
	StockQuantity int    `json:"stock_quantity"`
}

type CreateSupplyRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Unit          string `json:"unit" validate:"required,max=20"`
	StockQuantity int    `json:"stock_quantity" validate:"gte=0"`
}

type CreateSupplyTransferRequest struct {
	SupplyID      uint   `json:"supply_id" validate:"required"`
	StoreID       uint   `json:"store_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"gt=0"`
	Note          string `json:"note" validate:"max=255"`
	TransferredAt string `json:"transferred_at"`
}

type SupplyTransferResponse struct {
	ID            uint      `json:"id"`
	SupplyID      uint      `json:"supply_id"`
	SupplyName    string    `json:"supply_name"`
	StoreID       uint      `json:"store_id"`
	StoreName     string    `json:"store_name"`
	Quantity      int       `json:"quantity"`
	Note          string    `json:"note"`
	TransferredAt time.Time `json:"transferred_at"`
}

func toSupplyResponse(s models.Supply) SupplyResponse {
	return SupplyResponse{ID: s.ID, Name: s.Name, Unit: s.Unit, StockQuantity: s.StockQuantity}
}

func toSupplyTransferResponse(t models.SupplyTransfer) SupplyTransferResponse {
	return SupplyTransferResponse{
		ID:            t.ID,
		SupplyID:      t.SupplyID,
		SupplyName:    t.Supply.Name,
		StoreID:       t.StoreID,
		StoreName:     t.Store.Name,
		Quantity:      t.Quantity,
		Note:          t.Note,
		TransferredAt: t.TransferredAt,
	}
}

// GET /api/supplies
func ListSuppliesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var supplies []models.Supply
		if err := database.DB.Order("name asc").Find(&supplies).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "supplies could not be listed")
		}
		res := make([]SupplyResponse, 0, len(supplies))
		for _, s := range supplies {
			res = append(res, toSupplyResponse(s))
		}
		return c.JSON(res)
	}
}

// POST /api/supplies (manager+)
func CreateSupplyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSupplyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Name = strings.TrimSpace(body.Name)
		if err := validateBody(body); err != nil {
			return err
		}

		s := models.Supply{Name: body.Name, Unit: body.Unit, StockQuantity: body.StockQuantity}
		if err := database.DB.Create(&s).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "supply could not be created (duplicate name?)")
		}

		if userID, userName, storeID, err := getUserInfo(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				StoreID:     storeID,
				UserID:      userID,
				UserName:    userName,
				EntityType:  "supply",
				EntityID:    s.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("supply created: %s", s.Name),
				After:       s,
			})
		}

		return c.Status(fiber.StatusCreated).JSON(toSupplyResponse(s))
	}
}

// POST /api/supplies/transfers
func CreateSupplyTransferHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		var body CreateSupplyTransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(body); err != nil {
			return err
		}
		day, err := parseDay(body.TransferredAt)
		if err != nil {
			return err
		}

		st := models.SupplyTransfer{
			SupplyID:      body.SupplyID,
			StoreID:       body.StoreID,
			Quantity:      body.Quantity,
			Note:          body.Note,
			TransferredAt: day,
			CreatedBy:     userID,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&st.Store, "id = ?", st.StoreID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "store not found")
			}
			if err := tx.First(&st.Supply, "id = ?", st.SupplyID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "supply not found")
			}

			res := tx.Model(&models.Supply{}).
				Where("id = ? AND stock_quantity >= ?", st.SupplyID, st.Quantity).
				UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", st.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errInsufficientStock
			}
			st.Supply.StockQuantity -= st.Quantity

			return tx.Omit("Supply", "Store").Create(&st).Error
		})
		if err != nil {
			if errors.Is(err, errInsufficientStock) {
				metrics.StockRejections.WithLabelValues("supply").Inc()
			}
			return asFiberError(err, "supply transfer could not be saved")
		}

		storeID := st.StoreID
		_ = audit.WriteLog(audit.LogOptions{
			StoreID:     &storeID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "supply_transfer",
			EntityID:    st.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("supply transfer: %s x%d → %s", st.Supply.Name, st.Quantity, st.Store.Name),
			After:       toSupplyTransferResponse(st),
		})

		return c.Status(fiber.StatusCreated).JSON(toSupplyTransferResponse(st))
	}
}

// GET /api/supplies/transfers?date=
func ListSupplyTransfersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.SupplyTransfer{}).Preload("Supply").Preload("Store")
		if s := c.Query("date"); s != "" {
			day, err := parseDay(s)
			if err != nil {
				return err
			}
			start, end := dayRange(day)
			q = q.Where("transferred_at >= ? AND transferred_at < ?", start, end)
		}

		var transfers []models.SupplyTransfer
		if err := q.Order("transferred_at desc, id desc").Find(&transfers).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "supply transfers could not be listed")
		}
		res := make([]SupplyTransferResponse, 0, len(transfers))
		for _, t := range transfers {
			res = append(res, toSupplyTransferResponse(t))
		}
		return c.JSON(res)
	}
}
