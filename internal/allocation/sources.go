package allocation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type LotFilter struct {
	DateFrom    time.Time
	DateTo      time.Time
	InStockOnly bool
	Limit       int
}

type LotSource interface {
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, error)
}

// DestinationSource lists stores in display order.
type DestinationSource interface {
	ListDestinations(ctx context.Context) ([]Destination, error)
}

type PriceSource interface {
	LatestPrices(ctx context.Context) (map[ItemID]decimal.Decimal, error)
	PriceHistory(ctx context.Context, item ItemID) ([]PriceChange, error)
}

type TransferRequest struct {
	Destination    DestinationID
	Item           ItemID
	Lot            LotID
	Quantity       int
	UnitPrice      decimal.Decimal
	WholesalePrice decimal.NullDecimal
	Date           time.Time
	IdempotencyKey string
}

type TransferSink interface {
	CreateTransfer(ctx context.Context, req TransferRequest) error
}

type DisposalRequest struct {
	Item           ItemID
	Lot            LotID
	Quantity       int
	Reason         DisposalReason
	Date           time.Time
	IdempotencyKey string
}

type DisposalSink interface {
	CreateDisposal(ctx context.Context, req DisposalRequest) error
}

type PriceChangeRequest struct {
	Item     ItemID
	Lot      LotID
	OldPrice decimal.Decimal
	NewPrice decimal.Decimal
}

type PriceChangeSink interface {
	CreatePriceChange(ctx context.Context, req PriceChangeRequest) (PriceChange, error)
}

// Sources bundles the read side needed to build a grid.
type Sources struct {
	Lots         LotSource
	Destinations DestinationSource
	Prices       PriceSource
}

// Load builds a grid for date. Price lookups are best effort: a failed
// latest-price or history call leaves lots at their wholesale price.
func Load(ctx context.Context, date time.Time, filter LotFilter, src Sources) (*Grid, error) {
	dests, err := src.Destinations.ListDestinations(ctx)
	if err != nil {
		return nil, err
	}
	lots, err := src.Lots.ListLots(ctx, filter)
	if err != nil {
		return nil, err
	}

	ledger := NewPriceLedger()
	if src.Prices != nil {
		seedPrices(ctx, ledger, lots, src.Prices)
	}
	return NewGrid(date, dests, lots, ledger), nil
}

func seedPrices(ctx context.Context, ledger *PriceLedger, lots []Lot, prices PriceSource) {
	latest, err := prices.LatestPrices(ctx)
	if err != nil {
		latest = nil
	}
	histories := make(map[ItemID][]PriceChange)
	for _, lot := range lots {
		if _, ok := histories[lot.ItemID]; ok {
			continue
		}
		h, err := prices.PriceHistory(ctx, lot.ItemID)
		if err != nil {
			h = nil
		}
		histories[lot.ItemID] = h
	}
	for _, lot := range lots {
		var seed decimal.NullDecimal
		if p, ok := latest[lot.ItemID]; ok {
			seed = decimal.NullDecimal{Decimal: p, Valid: true}
		}
		ledger.Register(lot, seed, histories[lot.ItemID])
	}
}
