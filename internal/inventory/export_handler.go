package inventory

import (
	"fmt"
	"sort"
	"time"

	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	matrixSheet = "Transfers"
	detailSheet = "Details"
)

var detailHeaders = []string{"Date", "Store", "Item", "Quantity", "Unit price", "Wholesale", "Margin"}

// buildTransferWorkbook lays out one day's transfers: a store × item
// quantity matrix and a line-per-transfer detail sheet.
func buildTransferWorkbook(day time.Time, stores []models.Store, transfers []models.Transfer) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", matrixSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(detailSheet); err != nil {
		return nil, err
	}

	// rows are items sorted by name
	itemNames := map[uint]string{}
	for _, t := range transfers {
		itemNames[t.ItemID] = t.Item.Name
	}
	itemIDs := make([]uint, 0, len(itemNames))
	for id := range itemNames {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool {
		if itemNames[itemIDs[i]] != itemNames[itemIDs[j]] {
			return itemNames[itemIDs[i]] < itemNames[itemIDs[j]]
		}
		return itemIDs[i] < itemIDs[j]
	})

	type key struct{ item, store uint }
	qty := map[key]int{}
	for _, t := range transfers {
		qty[key{t.ItemID, t.StoreID}] += t.Quantity
	}

	set := func(sheet string, col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, v)
	}

	if err := set(matrixSheet, 1, 1, day.Format("2006-01-02")); err != nil {
		return nil, err
	}
	for i, s := range stores {
		if err := set(matrixSheet, i+2, 1, s.Name); err != nil {
			return nil, err
		}
	}
	if err := set(matrixSheet, len(stores)+2, 1, "Total"); err != nil {
		return nil, err
	}

	for r, itemID := range itemIDs {
		row := r + 2
		if err := set(matrixSheet, 1, row, itemNames[itemID]); err != nil {
			return nil, err
		}
		total := 0
		for i, s := range stores {
			q := qty[key{itemID, s.ID}]
			total += q
			if q == 0 {
				continue
			}
			if err := set(matrixSheet, i+2, row, q); err != nil {
				return nil, err
			}
		}
		if err := set(matrixSheet, len(stores)+2, row, total); err != nil {
			return nil, err
		}
	}

	for i, h := range detailHeaders {
		if err := set(detailSheet, i+1, 1, h); err != nil {
			return nil, err
		}
	}
	for r, t := range transfers {
		row := r + 2
		values := []any{
			t.TransferredAt.Format("2006-01-02"),
			t.Store.Name,
			t.Item.Name,
			t.Quantity,
			t.UnitPrice.InexactFloat64(),
			nullableFloat(t.WholesalePrice),
			nullableFloat(t.Margin),
		}
		for c, v := range values {
			if v == nil {
				continue
			}
			if err := set(detailSheet, c+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

func nullableFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

// GET /api/transfers/export?date=YYYY-MM-DD
func ExportTransfersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := parseDay(c.Query("date"))
		if err != nil {
			return err
		}
		start, end := dayRange(day)

		var stores []models.Store
		if err := database.DB.Order("sort_order asc, id asc").Find(&stores).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "stores could not be loaded")
		}

		var transfers []models.Transfer
		if err := database.DB.Preload("Store").Preload("Item").
			Where("transferred_at >= ? AND transferred_at < ?", start, end).
			Order("id asc").
			Find(&transfers).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "transfers could not be loaded")
		}

		f, err := buildTransferWorkbook(day, stores, transfers)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "spreadsheet could not be built")
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "spreadsheet could not be written")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="transfers-%s.xlsx"`, day.Format("2006-01-02")))
		return c.Send(buf.Bytes())
	}
}
