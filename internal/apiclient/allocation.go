package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"flower-backoffice/internal/allocation"

	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

var (
	_ allocation.LotSource         = (*Client)(nil)
	_ allocation.DestinationSource = (*Client)(nil)
	_ allocation.PriceSource       = (*Client)(nil)
	_ allocation.TransferSink      = (*Client)(nil)
	_ allocation.DisposalSink      = (*Client)(nil)
	_ allocation.PriceChangeSink   = (*Client)(nil)
)

type arrivalDTO struct {
	ID                uint                `json:"id"`
	ItemID            uint                `json:"item_id"`
	ItemName          string              `json:"item_name"`
	Quantity          int                 `json:"quantity"`
	RemainingQuantity int                 `json:"remaining_quantity"`
	WholesalePrice    decimal.NullDecimal `json:"wholesale_price"`
	ArrivedAt         time.Time           `json:"arrived_at"`
}

type storeDTO struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sort_order"`
}

type priceChangeDTO struct {
	ID        uint            `json:"id"`
	ItemID    uint            `json:"item_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangedAt time.Time       `json:"changed_at"`
}

func (p priceChangeDTO) toChange() allocation.PriceChange {
	return allocation.PriceChange{
		ID:        p.ID,
		ItemID:    allocation.ItemID(p.ItemID),
		OldPrice:  p.OldPrice,
		NewPrice:  p.NewPrice,
		ChangedAt: p.ChangedAt,
	}
}

func (c *Client) ListLots(ctx context.Context, filter allocation.LotFilter) ([]allocation.Lot, error) {
	params := url.Values{}
	if !filter.DateFrom.IsZero() {
		params.Set("date_from", filter.DateFrom.Format(dayLayout))
	}
	if !filter.DateTo.IsZero() {
		params.Set("date_to", filter.DateTo.Format(dayLayout))
	}
	if filter.InStockOnly {
		params.Set("in_stock", "true")
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}

	var rows []arrivalDTO
	if err := c.do(ctx, http.MethodGet, "/api/arrivals", params, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("list arrivals: %w", err)
	}

	lots := make([]allocation.Lot, 0, len(rows))
	for _, r := range rows {
		lots = append(lots, allocation.Lot{
			ID:             allocation.LotID(r.ID),
			ItemID:         allocation.ItemID(r.ItemID),
			ItemName:       r.ItemName,
			Quantity:       r.Quantity,
			Remaining:      r.RemainingQuantity,
			WholesalePrice: r.WholesalePrice,
			ArrivedAt:      r.ArrivedAt,
		})
	}
	return lots, nil
}

func (c *Client) ListDestinations(ctx context.Context) ([]allocation.Destination, error) {
	var rows []storeDTO
	if err := c.do(ctx, http.MethodGet, "/api/stores", nil, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	dests := make([]allocation.Destination, 0, len(rows))
	for _, r := range rows {
		dests = append(dests, allocation.Destination{
			ID:        allocation.DestinationID(r.ID),
			Kind:      allocation.DestinationStore,
			Name:      r.Name,
			Color:     r.Color,
			SortOrder: r.SortOrder,
		})
	}
	return dests, nil
}

func (c *Client) LatestPrices(ctx context.Context) (map[allocation.ItemID]decimal.Decimal, error) {
	var raw map[string]decimal.Decimal
	if err := c.do(ctx, http.MethodGet, "/api/transfers/price-changes-latest", nil, nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	out := make(map[allocation.ItemID]decimal.Decimal, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		out[allocation.ItemID(id)] = v
	}
	return out, nil
}

func (c *Client) PriceHistory(ctx context.Context, item allocation.ItemID) ([]allocation.PriceChange, error) {
	var rows []priceChangeDTO
	path := fmt.Sprintf("/api/transfers/price-changes/%d", item)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("price history %d: %w", item, err)
	}
	out := make([]allocation.PriceChange, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toChange())
	}
	return out, nil
}

func keyHeader(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{idempotencyHeader: key}
}

func lotRef(id allocation.LotID) *uint {
	if id == 0 {
		return nil
	}
	v := uint(id)
	return &v
}

func (c *Client) CreateTransfer(ctx context.Context, req allocation.TransferRequest) error {
	body := map[string]any{
		"store_id":       uint(req.Destination),
		"item_id":        uint(req.Item),
		"arrival_id":     lotRef(req.Lot),
		"quantity":       req.Quantity,
		"unit_price":     req.UnitPrice,
		"transferred_at": req.Date.Format(dayLayout),
	}
	if req.WholesalePrice.Valid {
		body["wholesale_price"] = req.WholesalePrice.Decimal
	}
	return c.do(ctx, http.MethodPost, "/api/transfers", nil, body, keyHeader(req.IdempotencyKey), nil)
}

func (c *Client) CreateDisposal(ctx context.Context, req allocation.DisposalRequest) error {
	body := map[string]any{
		"item_id":     uint(req.Item),
		"arrival_id":  lotRef(req.Lot),
		"quantity":    req.Quantity,
		"reason":      string(req.Reason),
		"disposed_at": req.Date.Format(dayLayout),
	}
	return c.do(ctx, http.MethodPost, "/api/disposals", nil, body, keyHeader(req.IdempotencyKey), nil)
}

func (c *Client) CreatePriceChange(ctx context.Context, req allocation.PriceChangeRequest) (allocation.PriceChange, error) {
	body := map[string]any{
		"item_id":   uint(req.Item),
		"old_price": req.OldPrice,
		"new_price": req.NewPrice,
	}
	var saved priceChangeDTO
	if err := c.do(ctx, http.MethodPost, "/api/transfers/price-changes", nil, body, nil, &saved); err != nil {
		return allocation.PriceChange{}, fmt.Errorf("price change: %w", err)
	}
	return saved.toChange(), nil
}
