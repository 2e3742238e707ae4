package inventory

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultArrivalLimit = 1000

type ArrivalResponse struct {
	ID                uint                `json:"id"`
	ItemID            uint                `json:"item_id"`
	ItemName          string              `json:"item_name"`
	Quantity          int                 `json:"quantity"`
	RemainingQuantity int                 `json:"remaining_quantity"`
	WholesalePrice    decimal.NullDecimal `json:"wholesale_price"`
	Supplier          string              `json:"supplier"`
	Note              string              `json:"note"`
	ArrivedAt         time.Time           `json:"arrived_at"`
}

// CreateArrivalRequest: either ItemID or ItemName; an unknown name creates the item.
type CreateArrivalRequest struct {
	ItemID         uint                `json:"item_id"`
	ItemName       string              `json:"item_name" validate:"required_without=ItemID,max=100"`
	Quantity       int                 `json:"quantity" validate:"gt=0"`
	WholesalePrice decimal.NullDecimal `json:"wholesale_price"`
	Supplier       string              `json:"supplier" validate:"max=100"`
	Note           string              `json:"note" validate:"max=255"`
	ArrivedAt      string              `json:"arrived_at"` // "2006-01-02", empty = today
}

func toArrivalResponse(a models.Arrival) ArrivalResponse {
	return ArrivalResponse{
		ID:                a.ID,
		ItemID:            a.ItemID,
		ItemName:          a.Item.Name,
		Quantity:          a.Quantity,
		RemainingQuantity: a.RemainingQuantity,
		WholesalePrice:    a.WholesalePrice,
		Supplier:          a.Supplier,
		Note:              a.Note,
		ArrivedAt:         a.ArrivedAt,
	}
}

// GET /api/arrivals?date_from=&date_to=&in_stock=true&limit=
func ListArrivalsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.Arrival{}).Preload("Item")

		if s := c.Query("date_from"); s != "" {
			from, err := parseDay(s)
			if err != nil {
				return err
			}
			q = q.Where("arrived_at >= ?", from)
		}
		if s := c.Query("date_to"); s != "" {
			to, err := parseDay(s)
			if err != nil {
				return err
			}
			_, end := dayRange(to)
			q = q.Where("arrived_at < ?", end)
		}
		if c.QueryBool("in_stock", false) {
			q = q.Where("remaining_quantity > 0")
		}
		limit := defaultArrivalLimit
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive number")
			}
			limit = n
		}
		q = q.Limit(limit)

		var arrivals []models.Arrival
		if err := q.Order("arrived_at desc, id asc").Find(&arrivals).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "arrivals could not be listed")
		}

		res := make([]ArrivalResponse, 0, len(arrivals))
		for _, a := range arrivals {
			res = append(res, toArrivalResponse(a))
		}
		return c.JSON(res)
	}
}

// POST /api/arrivals (manager+), a single object or an array
func CreateArrivalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, userName, storeID, err := getUserInfo(c)
		if err != nil {
			return err
		}

		var bodies []CreateArrivalRequest
		raw := bytes.TrimSpace(c.Body())
		if len(raw) > 0 && raw[0] == '[' {
			if err := c.BodyParser(&bodies); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		} else {
			var one CreateArrivalRequest
			if err := c.BodyParser(&one); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
			bodies = append(bodies, one)
		}
		if len(bodies) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "at least one arrival is required")
		}

		type pending struct {
			arrival  models.Arrival
			itemName string
		}
		rows := make([]pending, 0, len(bodies))
		for i := range bodies {
			b := &bodies[i]
			b.ItemName = strings.TrimSpace(b.ItemName)
			if err := validateBody(*b); err != nil {
				return err
			}
			if b.WholesalePrice.Valid && b.WholesalePrice.Decimal.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "wholesale_price cannot be negative")
			}
			day, err := parseDay(b.ArrivedAt)
			if err != nil {
				return err
			}
			rows = append(rows, pending{
				arrival: models.Arrival{
					ItemID:            b.ItemID,
					Quantity:          b.Quantity,
					RemainingQuantity: b.Quantity,
					WholesalePrice:    b.WholesalePrice,
					Supplier:          b.Supplier,
					Note:              b.Note,
					ArrivedAt:         day,
				},
				itemName: b.ItemName,
			})
		}

		created := make([]models.Arrival, 0, len(rows))
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			for _, p := range rows {
				a := p.arrival
				if a.ItemID != 0 {
					if err := tx.First(&a.Item, "id = ?", a.ItemID).Error; err != nil {
						return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("item %d not found", a.ItemID))
					}
				} else {
					item := models.Item{Name: p.itemName, Unit: "stem"}
					if err := tx.Where("name = ?", p.itemName).FirstOrCreate(&item).Error; err != nil {
						return err
					}
					a.ItemID = item.ID
					a.Item = item
				}
				if err := tx.Omit("Item").Create(&a).Error; err != nil {
					return err
				}
				created = append(created, a)
			}
			return nil
		})
		if err != nil {
			return asFiberError(err, "arrivals could not be saved")
		}

		res := make([]ArrivalResponse, 0, len(created))
		for _, a := range created {
			_ = audit.WriteLog(audit.LogOptions{
				StoreID:     storeID,
				UserID:      userID,
				UserName:    userName,
				EntityType:  "arrival",
				EntityID:    a.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("arrival: %s x%d", a.Item.Name, a.Quantity),
				After:       toArrivalResponse(a),
			})
			res = append(res, toArrivalResponse(a))
		}

		return c.Status(fiber.StatusCreated).JSON(res)
	}
}
