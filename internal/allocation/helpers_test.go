package allocation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	workDay   = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	arrivedAt = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
)

func testStores() []Destination {
	return []Destination{
		{ID: 3, Name: "Meguro", SortOrder: 3},
		{ID: 1, Name: "Shibuya", SortOrder: 1},
		{ID: 2, Name: "Ebisu", SortOrder: 2},
	}
}

func testLot(id LotID, item ItemID, name string, remaining int, price int64) Lot {
	return Lot{
		ID:             id,
		ItemID:         item,
		ItemName:       name,
		Quantity:       remaining,
		Remaining:      remaining,
		WholesalePrice: decimal.NewNullDecimal(decimal.NewFromInt(price)),
		ArrivedAt:      arrivedAt,
	}
}

type fakeLots struct {
	lots  []Lot
	calls int
	err   error
}

func (f *fakeLots) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]Lot(nil), f.lots...), nil
}

var errRemote = errors.New("remote write failed")

type fakeTransfers struct {
	mu    sync.Mutex
	calls []TransferRequest
	fail  map[DestinationID]bool
}

func (f *fakeTransfers) CreateTransfer(ctx context.Context, req TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail[req.Destination] {
		return errRemote
	}
	return nil
}

type fakeDisposals struct {
	mu    sync.Mutex
	calls []DisposalRequest
	err   error
}

func (f *fakeDisposals) CreateDisposal(ctx context.Context, req DisposalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.err
}

type fakePriceSink struct {
	calls []PriceChangeRequest
	err   error
}

func (f *fakePriceSink) CreatePriceChange(ctx context.Context, req PriceChangeRequest) (PriceChange, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return PriceChange{}, f.err
	}
	return PriceChange{
		ID:        uint(len(f.calls)),
		ItemID:    req.Item,
		OldPrice:  req.OldPrice,
		NewPrice:  req.NewPrice,
		ChangedAt: time.Date(2026, 3, 2, 10, len(f.calls), 0, 0, time.UTC),
	}, nil
}

type fakePrices struct {
	latest    map[ItemID]decimal.Decimal
	histories map[ItemID][]PriceChange
	err       error
}

func (f *fakePrices) LatestPrices(ctx context.Context) (map[ItemID]decimal.Decimal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latest, nil
}

func (f *fakePrices) PriceHistory(ctx context.Context, item ItemID) ([]PriceChange, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.histories[item], nil
}

type fakeDestinations struct {
	dests []Destination
}

func (f *fakeDestinations) ListDestinations(ctx context.Context) ([]Destination, error) {
	return f.dests, nil
}

func yen(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
