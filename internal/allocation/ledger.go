package allocation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// itemPrices is the change history of one item, shared by all of its lots.
type itemPrices struct {
	// ascending by ChangedAt
	history []PriceChange
}

func (p *itemPrices) head() (decimal.Decimal, bool) {
	if n := len(p.history); n > 0 {
		return p.history[n-1].NewPrice, true
	}
	return decimal.Zero, false
}

type priceEntry struct {
	itemID    ItemID
	original  decimal.Decimal
	current   decimal.Decimal
	staged    decimal.Decimal
	hasStaged bool
}

// PriceLedger keeps the effective unit price of every lot. Change history is
// kept per item, so every lot of an item sees the same latest price.
type PriceLedger struct {
	entries map[LotID]*priceEntry
	items   map[ItemID]*itemPrices
	now     func() time.Time
}

func NewPriceLedger() *PriceLedger {
	return &PriceLedger{
		entries: make(map[LotID]*priceEntry),
		items:   make(map[ItemID]*itemPrices),
		now:     time.Now,
	}
}

func (l *PriceLedger) item(id ItemID) *itemPrices {
	p, ok := l.items[id]
	if !ok {
		p = &itemPrices{}
		l.items[id] = p
	}
	return p
}

// last is the most recent known price of the lot: its item's history head or
// the lot's own wholesale price.
func (l *PriceLedger) last(e *priceEntry) decimal.Decimal {
	if p, ok := l.item(e.itemID).head(); ok {
		return p
	}
	return e.original
}

// Register seeds a lot. latest is the remote latest price for the lot's item,
// if any. Registering a lot twice keeps the first entry, and an item's
// history is only seeded while it is still empty.
func (l *PriceLedger) Register(lot Lot, latest decimal.NullDecimal, history []PriceChange) {
	item := l.item(lot.ItemID)
	if len(item.history) == 0 && len(history) > 0 {
		item.history = append([]PriceChange(nil), history...)
		sort.SliceStable(item.history, func(i, j int) bool {
			return item.history[i].ChangedAt.Before(item.history[j].ChangedAt)
		})
	}
	if _, ok := l.entries[lot.ID]; ok {
		return
	}
	e := &priceEntry{
		itemID:   lot.ItemID,
		original: lot.basePrice(),
		current:  lot.basePrice(),
	}
	if latest.Valid {
		e.current = latest.Decimal
	} else if p, ok := item.head(); ok {
		e.current = p
	}
	l.entries[lot.ID] = e
}

func (l *PriceLedger) CurrentPrice(id LotID) decimal.Decimal {
	if e, ok := l.entries[id]; ok {
		return e.current
	}
	return decimal.Zero
}

// Propose stages a price without touching history. Negative prices clamp to zero.
func (l *PriceLedger) Propose(id LotID, price decimal.Decimal) error {
	e, ok := l.entries[id]
	if !ok {
		return ErrRowNotFound
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	e.staged = price
	e.hasStaged = true
	return nil
}

func (l *PriceLedger) Staged(id LotID) (decimal.Decimal, bool) {
	e, ok := l.entries[id]
	if !ok || !e.hasStaged {
		return decimal.Zero, false
	}
	return e.staged, true
}

// Abandon drops the staged price.
func (l *PriceLedger) Abandon(id LotID) {
	if e, ok := l.entries[id]; ok {
		e.staged = decimal.Zero
		e.hasStaged = false
	}
}

// Prepare applies the staged price as the lot's current price and returns the
// history entry that has to be persisted. ok is false when the staged price
// equals the most recent known price.
func (l *PriceLedger) Prepare(id LotID) (change PriceChange, ok bool, err error) {
	e, found := l.entries[id]
	if !found {
		return PriceChange{}, false, ErrRowNotFound
	}
	if !e.hasStaged {
		return PriceChange{}, false, ErrNoStagedPrice
	}
	staged := e.staged
	e.current = staged
	e.staged = decimal.Zero
	e.hasStaged = false

	prev := l.last(e)
	if staged.Equal(prev) {
		return PriceChange{}, false, nil
	}
	return PriceChange{
		ItemID:    e.itemID,
		OldPrice:  prev,
		NewPrice:  staged,
		ChangedAt: l.now(),
	}, true, nil
}

// Record appends a persisted change to the history of the lot's item and
// makes it the current price of every lot of that item. A change equal to
// the history head is ignored, so a duplicated record cannot add a no-op
// transition.
func (l *PriceLedger) Record(id LotID, change PriceChange) {
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if change.NewPrice.Equal(l.last(e)) {
		return
	}
	item := l.item(e.itemID)
	item.history = append(item.history, change)
	for _, other := range l.entries {
		if other.itemID == e.itemID {
			other.current = change.NewPrice
		}
	}
}

// Restage puts a price that could not be persisted back in the staged slot,
// so the next Prepare or Confirm produces the same change again.
func (l *PriceLedger) Restage(id LotID, price decimal.Decimal) {
	if e, ok := l.entries[id]; ok && !e.hasStaged {
		e.staged = price
		e.hasStaged = true
	}
}

// Confirm runs Prepare, persists the change through sink and records it.
// On a sink failure the current price stays applied, history is unchanged
// and the price is staged again, so the next confirm retries the write.
func (l *PriceLedger) Confirm(ctx context.Context, id LotID, sink PriceChangeSink) (PriceChange, bool, error) {
	change, ok, err := l.Prepare(id)
	if err != nil || !ok {
		return PriceChange{}, false, err
	}
	saved, err := sink.CreatePriceChange(ctx, PriceChangeRequest{
		Item:     change.ItemID,
		Lot:      id,
		OldPrice: change.OldPrice,
		NewPrice: change.NewPrice,
	})
	if err != nil {
		l.Restage(id, change.NewPrice)
		return change, false, fmt.Errorf("record price change: %w", err)
	}
	saved = mergeSaved(change, saved)
	l.Record(id, saved)
	return saved, true, nil
}

// mergeSaved fills what the remote side did not echo back.
func mergeSaved(local, saved PriceChange) PriceChange {
	if saved.ItemID == 0 {
		saved.ItemID = local.ItemID
	}
	if saved.OldPrice.IsZero() {
		saved.OldPrice = local.OldPrice
	}
	if saved.NewPrice.IsZero() && !local.NewPrice.IsZero() {
		saved.NewPrice = local.NewPrice
	}
	if saved.ChangedAt.IsZero() {
		saved.ChangedAt = local.ChangedAt
	}
	return saved
}

// History returns the changes of the lot's item, newest first.
func (l *PriceLedger) History(id LotID) []PriceChange {
	e, ok := l.entries[id]
	if !ok {
		return nil
	}
	h := l.item(e.itemID).history
	out := make([]PriceChange, len(h))
	for i, c := range h {
		out[len(h)-1-i] = c
	}
	return out
}
