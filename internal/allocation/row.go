package allocation

import "github.com/google/uuid"

// cell holds one quantity and the idempotency key of its pending commit.
// The key is dropped whenever the quantity changes.
type cell struct {
	qty int
	key string
}

func (c *cell) set(qty int) {
	if c.qty != qty {
		c.qty = qty
		c.key = ""
	}
}

func (c *cell) commitKey() string {
	if c.key == "" {
		c.key = uuid.NewString()
	}
	return c.key
}

// Row aggregates the cells of one lot plus its disposal entry.
type Row struct {
	Lot Lot

	cells    map[DestinationID]*cell
	disposal cell
	reason   DisposalReason
	locked   bool
}

func newRow(lot Lot) *Row {
	return &Row{Lot: lot, cells: make(map[DestinationID]*cell)}
}

func (r *Row) Quantity(dest DestinationID) int {
	if c, ok := r.cells[dest]; ok {
		return c.qty
	}
	return 0
}

// SetQuantity clamps negative values to zero. It does not look at the lock;
// Grid.SetQuantity is the guarded input path.
func (r *Row) SetQuantity(dest DestinationID, value int) {
	if value < 0 {
		value = 0
	}
	c, ok := r.cells[dest]
	if value == 0 {
		if ok {
			delete(r.cells, dest)
		}
		return
	}
	if !ok {
		c = &cell{}
		r.cells[dest] = c
	}
	c.set(value)
}

// Total is the sum of all store cells, disposal excluded.
func (r *Row) Total() int {
	total := 0
	for _, c := range r.cells {
		total += c.qty
	}
	return total
}

func (r *Row) DisposalQuantity() int {
	return r.disposal.qty
}

func (r *Row) DisposalReason() DisposalReason {
	return r.reason
}

// setDisposal keeps an attached reason while the quantity stays positive.
// Zero clears both.
func (r *Row) setDisposal(qty int) {
	if qty <= 0 {
		r.disposal = cell{}
		r.reason = ""
		return
	}
	r.disposal.set(qty)
}

// Remaining is negative when the row overflows.
func (r *Row) Remaining() int {
	return r.Lot.Remaining - r.Total() - r.disposal.qty
}

func (r *Row) Overflow() bool {
	return r.Remaining() < 0
}

func (r *Row) Locked() bool {
	return r.locked
}

func (r *Row) Editable() bool {
	return !r.locked && !r.Lot.SoldOut()
}

// AwaitingReason reports a positive disposal with no reason attached.
func (r *Row) AwaitingReason() bool {
	return r.disposal.qty > 0 && r.reason == ""
}

func (r *Row) HasEntry() bool {
	return r.Total() > 0 || r.disposal.qty > 0
}

// lock is a no-op on overflowing or sold-out rows.
func (r *Row) lock() bool {
	if r.locked {
		return true
	}
	if r.Overflow() || r.Lot.SoldOut() {
		return false
	}
	r.locked = true
	return true
}

func (r *Row) unlock() {
	r.locked = false
}

func (r *Row) clear() {
	r.cells = make(map[DestinationID]*cell)
	r.disposal = cell{}
	r.reason = ""
	r.locked = false
}

// carry moves the uncommitted entries of r onto a freshly loaded lot.
func (r *Row) carry(lot Lot) *Row {
	next := newRow(lot)
	for dest, c := range r.cells {
		cp := *c
		next.cells[dest] = &cp
	}
	next.disposal = r.disposal
	next.reason = r.reason
	return next
}
