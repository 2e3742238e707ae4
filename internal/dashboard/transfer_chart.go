package dashboard

import (
	"fmt"
	"time"

	"flower-backoffice/internal/auth"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type TransferChartPoint struct {
	Label     string          `json:"label"` // bucket start date
	Quantity  int             `json:"quantity"`
	Sales     decimal.Decimal `json:"sales"`
	Margin    decimal.Decimal `json:"margin"`
	Disposals int             `json:"disposals"`
}

type TransferChartTotals struct {
	Quantity  int             `json:"quantity"`
	Sales     decimal.Decimal `json:"sales"`
	Margin    decimal.Decimal `json:"margin"`
	Disposals int             `json:"disposals"`
}

type TransferChartResponse struct {
	StoreID     *uint                `json:"store_id"`
	Period      string               `json:"period"` // daily | weekly | monthly
	From        string               `json:"from"`
	To          string               `json:"to"`
	Points      []TransferChartPoint `json:"points"`
	GrandTotals TransferChartTotals  `json:"grand_totals"`
}

// storeScope: store-bound users only see their own store; others may pass ?store_id=.
func storeScope(c *fiber.Ctx) (*uint, error) {
	if sPtr, ok := c.Locals(auth.CtxStoreIDKey).(*uint); ok && sPtr != nil {
		role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
		if !role.AtLeast(models.RoleBoss) {
			return sPtr, nil
		}
	}

	sidStr := c.Query("store_id")
	if sidStr == "" {
		return nil, nil
	}
	var sid uint
	if _, err := fmt.Sscan(sidStr, &sid); err != nil || sid == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid store_id")
	}
	return &sid, nil
}

// bucketStart maps t onto the first day of its period.
func bucketStart(t time.Time, period string) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case "weekly":
		offset := (int(day.Weekday()) + 6) % 7 // monday
		return day.AddDate(0, 0, -offset)
	case "monthly":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return day
}

func nextBucket(t time.Time, period string) time.Time {
	switch period {
	case "weekly":
		return t.AddDate(0, 0, 7)
	case "monthly":
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// GET /api/dashboard/transfer-chart?period=daily&count=7&store_id=1
func TransferChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		storeID, err := storeScope(c)
		if err != nil {
			return err
		}

		period := c.Query("period", "daily")
		countStr := c.Query("count", "")

		var count int
		if countStr == "" {
			switch period {
			case "weekly":
				count = 8
			case "monthly":
				count = 12
			default:
				period = "daily"
				count = 7
			}
		} else {
			if _, err := fmt.Sscan(countStr, &count); err != nil || count <= 0 || count > 366 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid count")
			}
		}
		if period != "weekly" && period != "monthly" {
			period = "daily"
		}

		last := bucketStart(time.Now(), period)
		start := last
		for i := 1; i < count; i++ {
			switch period {
			case "weekly":
				start = start.AddDate(0, 0, -7)
			case "monthly":
				start = start.AddDate(0, -1, 0)
			default:
				start = start.AddDate(0, 0, -1)
			}
		}
		end := nextBucket(last, period)

		tq := database.DB.Model(&models.Transfer{}).
			Where("transferred_at >= ? AND transferred_at < ?", start, end)
		if storeID != nil {
			tq = tq.Where("store_id = ?", *storeID)
		}
		var transfers []models.Transfer
		if err := tq.Find(&transfers).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "transfers could not be loaded")
		}

		// disposals are not store-bound; they only count in the unscoped chart
		var disposals []models.Disposal
		if storeID == nil {
			if err := database.DB.Where("disposed_at >= ? AND disposed_at < ?", start, end).
				Find(&disposals).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "disposals could not be loaded")
			}
		}

		points := make([]TransferChartPoint, 0, count)
		index := make(map[string]int, count)
		for b := start; b.Before(end); b = nextBucket(b, period) {
			label := b.Format("2006-01-02")
			index[label] = len(points)
			points = append(points, TransferChartPoint{Label: label, Sales: decimal.Zero, Margin: decimal.Zero})
		}

		totals := TransferChartTotals{Sales: decimal.Zero, Margin: decimal.Zero}
		for _, t := range transfers {
			i, ok := index[bucketStart(t.TransferredAt.In(start.Location()), period).Format("2006-01-02")]
			if !ok {
				continue
			}
			sales := t.UnitPrice.Mul(decimal.NewFromInt(int64(t.Quantity)))
			points[i].Quantity += t.Quantity
			points[i].Sales = points[i].Sales.Add(sales)
			totals.Quantity += t.Quantity
			totals.Sales = totals.Sales.Add(sales)
			if t.Margin.Valid {
				points[i].Margin = points[i].Margin.Add(t.Margin.Decimal)
				totals.Margin = totals.Margin.Add(t.Margin.Decimal)
			}
		}
		for _, d := range disposals {
			i, ok := index[bucketStart(d.DisposedAt.In(start.Location()), period).Format("2006-01-02")]
			if !ok {
				continue
			}
			points[i].Disposals += d.Quantity
			totals.Disposals += d.Quantity
		}

		return c.JSON(TransferChartResponse{
			StoreID:     storeID,
			Period:      period,
			From:        start.Format("2006-01-02"),
			To:          last.Format("2006-01-02"),
			Points:      points,
			GrandTotals: totals,
		})
	}
}
