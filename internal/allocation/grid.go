package allocation

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Field int

const (
	FieldCell Field = iota
	FieldDisposal
	FieldPrice
)

// Cursor addresses the active cell by display row and store column.
// Field selects the disposal or price input of the same row.
type Cursor struct {
	Row    int
	Column int
	Field  Field
}

// PendingPrice is a confirmed price edit that still has to be persisted.
type PendingPrice struct {
	Lot    LotID
	Change PriceChange
}

// Outcome describes what a key event did.
type Outcome struct {
	Handled bool
	// Commit is set when the commit accelerator fired and the grid is committable.
	Commit bool
	Prices []PendingPrice
}

// Grid is the allocation working set for one transfer date. It is not safe
// for concurrent use; every mutation happens on the caller's event loop.
type Grid struct {
	notifier

	date   time.Time
	stores []Destination
	rows   []*Row
	byLot  map[LotID]*Row
	ledger *PriceLedger
	keys   Keymap

	cursor Cursor
	active bool
	input  string

	gateLot  LotID
	gateOpen bool

	pendingPrices []PendingPrice
}

func NewGrid(date time.Time, dests []Destination, lots []Lot, ledger *PriceLedger) *Grid {
	if ledger == nil {
		ledger = NewPriceLedger()
	}
	g := &Grid{
		date:   date,
		stores: storeColumns(dests),
		ledger: ledger,
		keys:   DefaultKeymap(),
	}
	g.setLots(lots, nil)
	return g
}

func storeColumns(dests []Destination) []Destination {
	out := make([]Destination, 0, len(dests))
	for _, d := range dests {
		if d.Kind == DestinationStore {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// orderLots groups lots by arrival day, newest day first. Inside a day,
// lots with stock come before sold-out ones.
func orderLots(lots []Lot) []Lot {
	out := append([]Lot(nil), lots...)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := arrivalDay(out[i].ArrivedAt), arrivalDay(out[j].ArrivedAt)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return !out[i].SoldOut() && out[j].SoldOut()
	})
	return out
}

func arrivalDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (g *Grid) setLots(lots []Lot, prev map[LotID]*Row) {
	ordered := orderLots(lots)
	g.rows = make([]*Row, 0, len(ordered))
	g.byLot = make(map[LotID]*Row, len(ordered))
	for _, lot := range ordered {
		row := newRow(lot)
		if old, ok := prev[lot.ID]; ok {
			row = old.carry(lot)
		}
		g.rows = append(g.rows, row)
		g.byLot[lot.ID] = row
		g.ledger.Register(lot, decimal.NullDecimal{}, nil)
	}
}

func (g *Grid) Date() time.Time { return g.date }

func (g *Grid) Ledger() *PriceLedger { return g.ledger }

func (g *Grid) Keymap() Keymap { return g.keys }

func (g *Grid) SetKeymap(keys Keymap) { g.keys = keys }

func (g *Grid) Stores() []Destination { return append([]Destination(nil), g.stores...) }

// Rows returns the rows in display order.
func (g *Grid) Rows() []*Row { return append([]*Row(nil), g.rows...) }

func (g *Grid) Row(id LotID) (*Row, bool) {
	r, ok := g.byLot[id]
	return r, ok
}

func (g *Grid) rowIndex(id LotID) int {
	for i, r := range g.rows {
		if r.Lot.ID == id {
			return i
		}
	}
	return -1
}

func (g *Grid) columnIndex(id DestinationID) int {
	for i, d := range g.stores {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Cells and rows
// ---------------------------------------------------------------------------

// SetQuantity is the guarded input path: locked and sold-out rows ignore it.
func (g *Grid) SetQuantity(lot LotID, dest DestinationID, value int) bool {
	row, ok := g.byLot[lot]
	if !ok || g.columnIndex(dest) < 0 || !row.Editable() {
		return false
	}
	row.SetQuantity(dest, value)
	if g.isActiveCell(row, dest) {
		g.input = g.fieldText()
	}
	return true
}

func (g *Grid) Quantity(lot LotID, dest DestinationID) int {
	if row, ok := g.byLot[lot]; ok {
		return row.Quantity(dest)
	}
	return 0
}

func (g *Grid) TotalForRow(lot LotID) int {
	if row, ok := g.byLot[lot]; ok {
		return row.Total()
	}
	return 0
}

func (g *Grid) Remaining(lot LotID) int {
	if row, ok := g.byLot[lot]; ok {
		return row.Remaining()
	}
	return 0
}

// LockRow refuses overflowing rows. When the cursor sits on the locked row it
// moves to the first cell of the next editable row, or clears.
func (g *Grid) LockRow(lot LotID) bool {
	row, ok := g.byLot[lot]
	if !ok {
		return false
	}
	wasLocked := row.locked
	if !row.lock() {
		return false
	}
	if !wasLocked {
		g.emit(Notification{Kind: NotifyRowLocked, Lot: lot})
	}
	if g.active && g.rows[g.cursor.Row] == row {
		g.leaveField()
		if j := g.nextEditable(g.cursor.Row); j >= 0 {
			g.focusAt(j, 0, FieldCell)
		} else {
			g.clearFocus()
		}
	}
	return true
}

// UnlockRow never touches quantities.
func (g *Grid) UnlockRow(lot LotID) bool {
	row, ok := g.byLot[lot]
	if !ok {
		return false
	}
	if row.locked {
		row.unlock()
		g.emit(Notification{Kind: NotifyRowUnlocked, Lot: lot})
	}
	return true
}

// UnlockNearest unlocks the closest locked row above the cursor (or below it
// when there is none above) and focuses it.
func (g *Grid) UnlockNearest() bool {
	start := len(g.rows) - 1
	if g.active {
		start = g.cursor.Row - 1
	}
	idx := -1
	for i := start; i >= 0; i-- {
		if g.rows[i].locked {
			idx = i
			break
		}
	}
	if idx < 0 && g.active {
		for i := g.cursor.Row + 1; i < len(g.rows); i++ {
			if g.rows[i].locked {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false
	}
	g.UnlockRow(g.rows[idx].Lot.ID)
	if g.rows[idx].Editable() && len(g.stores) > 0 {
		g.leaveField()
		g.focusAt(idx, 0, FieldCell)
	}
	return true
}

// ClearAll drops every entry, lock and the cursor.
func (g *Grid) ClearAll() {
	for _, r := range g.rows {
		r.clear()
	}
	g.closeGate()
	g.clearFocus()
	g.emit(Notification{Kind: NotifyCleared})
}

func (g *Grid) HasOverflow() bool {
	for _, r := range g.rows {
		if r.Overflow() {
			return true
		}
	}
	return false
}

// OverflowRows lists overflowing lots in display order.
func (g *Grid) OverflowRows() []LotID {
	var out []LotID
	for _, r := range g.rows {
		if r.Overflow() {
			out = append(out, r.Lot.ID)
		}
	}
	return out
}

func (g *Grid) HasAnyEntry() bool {
	for _, r := range g.rows {
		if r.HasEntry() {
			return true
		}
	}
	return false
}

func (g *Grid) CanCommit() bool {
	return g.HasAnyEntry() && !g.HasOverflow()
}

// ---------------------------------------------------------------------------
// Cursor
// ---------------------------------------------------------------------------

func (g *Grid) Cursor() (Cursor, bool) {
	return g.cursor, g.active
}

func (g *Grid) ActiveCell() (LotID, DestinationID, bool) {
	if !g.active {
		return 0, 0, false
	}
	return g.rows[g.cursor.Row].Lot.ID, g.stores[g.cursor.Column].ID, true
}

// InputText is the text currently shown in the active field.
func (g *Grid) InputText() string {
	return g.input
}

func (g *Grid) isActiveCell(row *Row, dest DestinationID) bool {
	if !g.active || g.cursor.Field != FieldCell {
		return false
	}
	return g.rows[g.cursor.Row] == row && g.stores[g.cursor.Column].ID == dest
}

func (g *Grid) activeRow() *Row {
	if !g.active {
		return nil
	}
	return g.rows[g.cursor.Row]
}

func (g *Grid) fieldText() string {
	row := g.activeRow()
	if row == nil {
		return ""
	}
	switch g.cursor.Field {
	case FieldDisposal:
		return quantityText(row.disposal.qty)
	case FieldPrice:
		if p, ok := g.ledger.Staged(row.Lot.ID); ok {
			return p.String()
		}
		return g.ledger.CurrentPrice(row.Lot.ID).String()
	}
	return quantityText(row.Quantity(g.stores[g.cursor.Column].ID))
}

func quantityText(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func (g *Grid) focusAt(row, col int, field Field) {
	g.cursor = Cursor{Row: row, Column: col, Field: field}
	g.active = true
	g.input = g.fieldText()
	g.emit(Notification{
		Kind:        NotifyFocus,
		Lot:         g.rows[row].Lot.ID,
		Destination: g.stores[col].ID,
		Field:       field,
	})
}

func (g *Grid) clearFocus() {
	if !g.active {
		return
	}
	g.active = false
	g.cursor = Cursor{}
	g.input = ""
	g.emit(Notification{Kind: NotifyFocusCleared})
}

// leaveField returns from the disposal or price input to the row's cell.
// It reports whether the reason gate opened.
func (g *Grid) leaveField() bool {
	row := g.activeRow()
	if row == nil {
		return false
	}
	field := g.cursor.Field
	g.cursor.Field = FieldCell
	g.input = g.fieldText()
	switch field {
	case FieldDisposal:
		return g.requireReason(row)
	case FieldPrice:
		g.preparePrice(row.Lot.ID)
	}
	return false
}

func (g *Grid) nextEditable(from int) int {
	for i := from + 1; i < len(g.rows); i++ {
		if g.rows[i].Editable() {
			return i
		}
	}
	return -1
}

func (g *Grid) prevEditable(from int) int {
	for i := from - 1; i >= 0; i-- {
		if g.rows[i].Editable() {
			return i
		}
	}
	return -1
}

// Focus is the pointer path. Locked and sold-out rows cannot take focus.
func (g *Grid) Focus(lot LotID, dest DestinationID) bool {
	if g.gateOpen {
		return false
	}
	idx, col := g.rowIndex(lot), g.columnIndex(dest)
	if idx < 0 || col < 0 || !g.rows[idx].Editable() {
		return false
	}
	if g.leaveField() {
		return false
	}
	g.focusAt(idx, col, FieldCell)
	return true
}

func (g *Grid) Blur() {
	if g.leaveField() {
		return
	}
	g.clearFocus()
}

// Move walks the store columns row-major. Right and Next wrap to the first
// column of the next editable row; Prev wraps back to the last column.
// Without an active cell any move focuses the first editable cell.
func (g *Grid) Move(dir Direction) bool {
	if g.gateOpen || len(g.stores) == 0 {
		return false
	}
	if !g.active {
		j := g.nextEditable(-1)
		if j < 0 {
			return false
		}
		g.focusAt(j, 0, FieldCell)
		return true
	}
	if g.cursor.Field != FieldCell && g.leaveField() {
		return false
	}

	row, col := g.cursor.Row, g.cursor.Column
	last := len(g.stores) - 1
	switch dir {
	case Right, Next:
		if col < last {
			g.focusAt(row, col+1, FieldCell)
			return true
		}
		if j := g.nextEditable(row); j >= 0 {
			g.focusAt(j, 0, FieldCell)
			return true
		}
	case Left:
		if col > 0 {
			g.focusAt(row, col-1, FieldCell)
			return true
		}
	case Prev:
		if col > 0 {
			g.focusAt(row, col-1, FieldCell)
			return true
		}
		if j := g.prevEditable(row); j >= 0 {
			g.focusAt(j, last, FieldCell)
			return true
		}
	case Down:
		if j := g.nextEditable(row); j >= 0 {
			g.focusAt(j, col, FieldCell)
			return true
		}
	case Up:
		if j := g.prevEditable(row); j >= 0 {
			g.focusAt(j, col, FieldCell)
			return true
		}
	}
	return false
}

// Adjust applies a quick-key delta to the active store cell.
func (g *Grid) Adjust(delta int) bool {
	row := g.activeRow()
	if row == nil || g.cursor.Field != FieldCell || !row.Editable() {
		return false
	}
	dest := g.stores[g.cursor.Column].ID
	row.SetQuantity(dest, row.Quantity(dest)+delta)
	g.input = g.fieldText()
	return true
}

// ConfirmRow locks the active row and advances to the next editable row.
func (g *Grid) ConfirmRow() bool {
	row := g.activeRow()
	if row == nil || g.cursor.Field != FieldCell {
		return false
	}
	return g.LockRow(row.Lot.ID)
}

// Input replaces the active field's text. Unparsable quantity text is
// rejected; price text is kept so partial decimals can be typed.
func (g *Grid) Input(text string) bool {
	row := g.activeRow()
	if row == nil || g.gateOpen || !row.Editable() {
		return false
	}
	switch g.cursor.Field {
	case FieldPrice:
		g.input = text
		p, err := ParsePrice(text)
		if err != nil {
			return false
		}
		return g.ledger.Propose(row.Lot.ID, p) == nil
	case FieldDisposal:
		v, err := ParseQuantity(text)
		if err != nil {
			return false
		}
		g.input = text
		g.setDisposalQuantity(row, v)
		return true
	}
	v, err := ParseQuantity(text)
	if err != nil {
		return false
	}
	g.input = text
	row.SetQuantity(g.stores[g.cursor.Column].ID, v)
	return true
}

func (g *Grid) Backspace() bool {
	if !g.active {
		return false
	}
	r := []rune(g.input)
	if len(r) == 0 {
		return false
	}
	return g.Input(string(r[:len(r)-1]))
}

// ---------------------------------------------------------------------------
// Disposal and the reason gate
// ---------------------------------------------------------------------------

func (g *Grid) FocusDisposal() bool {
	row := g.activeRow()
	if row == nil || g.gateOpen || !row.Editable() {
		return false
	}
	if g.cursor.Field == FieldPrice {
		g.leaveField()
	}
	g.cursor.Field = FieldDisposal
	g.input = g.fieldText()
	g.emit(Notification{Kind: NotifyFocus, Lot: row.Lot.ID, Field: FieldDisposal})
	return true
}

// LeaveDisposal is focus loss or confirm on the disposal input. It reports
// whether the reason gate opened.
func (g *Grid) LeaveDisposal() bool {
	if !g.active || g.cursor.Field != FieldDisposal {
		return false
	}
	return g.leaveField()
}

func (g *Grid) SetDisposalQuantity(lot LotID, qty int) bool {
	row, ok := g.byLot[lot]
	if !ok || !row.Editable() {
		return false
	}
	g.setDisposalQuantity(row, qty)
	return true
}

func (g *Grid) setDisposalQuantity(row *Row, qty int) {
	row.setDisposal(qty)
	if qty <= 0 && g.gateOpen && g.gateLot == row.Lot.ID {
		g.closeGate()
	}
}

// SetDisposal sets quantity and reason together.
func (g *Grid) SetDisposal(lot LotID, qty int, reason DisposalReason) error {
	row, ok := g.byLot[lot]
	if !ok {
		return ErrRowNotFound
	}
	if !row.Editable() {
		return ErrRowNotEditable
	}
	if qty > 0 && !reason.Valid() {
		return ErrInvalidReason
	}
	g.setDisposalQuantity(row, qty)
	if qty > 0 {
		row.reason = reason
		if g.gateOpen && g.gateLot == lot {
			g.closeGate()
		}
	}
	return nil
}

func (g *Grid) requireReason(row *Row) bool {
	if !row.AwaitingReason() {
		return false
	}
	g.gateLot = row.Lot.ID
	g.gateOpen = true
	g.emit(Notification{Kind: NotifyReasonRequired, Lot: row.Lot.ID, Quantity: row.disposal.qty})
	return true
}

func (g *Grid) closeGate() {
	g.gateLot = 0
	g.gateOpen = false
}

// ReasonGate reports the lot and quantity waiting for a disposal reason.
func (g *Grid) ReasonGate() (LotID, int, bool) {
	if !g.gateOpen {
		return 0, 0, false
	}
	return g.gateLot, g.byLot[g.gateLot].disposal.qty, true
}

func (g *Grid) ChooseReason(reason DisposalReason) error {
	if !g.gateOpen {
		return ErrGateClosed
	}
	if !reason.Valid() {
		return ErrInvalidReason
	}
	g.byLot[g.gateLot].reason = reason
	g.closeGate()
	return nil
}

// CancelReason zeroes the held disposal quantity.
func (g *Grid) CancelReason() error {
	if !g.gateOpen {
		return ErrGateClosed
	}
	row := g.byLot[g.gateLot]
	row.setDisposal(0)
	g.closeGate()
	if g.activeRow() == row {
		g.input = g.fieldText()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

func (g *Grid) FocusPrice() bool {
	row := g.activeRow()
	if row == nil || g.gateOpen || !row.Editable() {
		return false
	}
	if g.cursor.Field == FieldDisposal && g.leaveField() {
		return false
	}
	g.cursor.Field = FieldPrice
	g.input = g.fieldText()
	g.emit(Notification{Kind: NotifyFocus, Lot: row.Lot.ID, Field: FieldPrice})
	return true
}

func (g *Grid) preparePrice(id LotID) {
	change, ok, err := g.ledger.Prepare(id)
	if err != nil || !ok {
		return
	}
	g.pendingPrices = append(g.pendingPrices, PendingPrice{Lot: id, Change: change})
}

// TakePendingPrices drains price changes waiting to be persisted.
func (g *Grid) TakePendingPrices() []PendingPrice {
	out := g.pendingPrices
	g.pendingPrices = nil
	return out
}

// RecordPriceChange appends a persisted change to the lot's history.
func (g *Grid) RecordPriceChange(lot LotID, saved PriceChange) {
	g.ledger.Record(lot, saved)
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// HandleKey runs one key event through the keymap.
func (g *Grid) HandleKey(key string) Outcome {
	var out Outcome
	out.Handled, out.Commit = g.dispatch(key)
	out.Prices = g.TakePendingPrices()
	return out
}

func (g *Grid) dispatch(key string) (handled, commit bool) {
	if g.gateOpen {
		if r, ok := ReasonKeys[key]; ok {
			return g.ChooseReason(r) == nil, false
		}
		if b, ok := g.keys.Lookup(key); ok && b.Action == ActionCancel {
			return g.CancelReason() == nil, false
		}
		return false, false
	}

	b, ok := g.keys.Lookup(key)
	if !ok {
		if g.active && isNumeral(key, g.cursor.Field == FieldPrice) {
			return g.Input(g.input + key), false
		}
		return false, false
	}

	switch b.Action {
	case ActionAdjust:
		return g.Adjust(b.Delta), false
	case ActionMove:
		return g.Move(b.Direction), false
	case ActionConfirm:
		if !g.active {
			return false, false
		}
		if g.cursor.Field == FieldCell {
			return g.ConfirmRow(), false
		}
		g.leaveField()
		return true, false
	case ActionCommit:
		return true, g.CanCommit()
	case ActionUnlock:
		return g.UnlockNearest(), false
	case ActionClearAll:
		g.ClearAll()
		return true, false
	case ActionEditDisposal:
		return g.FocusDisposal(), false
	case ActionEditPrice:
		return g.FocusPrice(), false
	case ActionCancel:
		return g.cancel(), false
	case ActionDelete:
		return g.Backspace(), false
	}
	return false, false
}

// cancel abandons a staged price, leaves the disposal input, or clears focus.
func (g *Grid) cancel() bool {
	row := g.activeRow()
	if row == nil {
		return false
	}
	switch g.cursor.Field {
	case FieldPrice:
		g.ledger.Abandon(row.Lot.ID)
		g.cursor.Field = FieldCell
		g.input = g.fieldText()
	case FieldDisposal:
		g.leaveField()
	default:
		g.clearFocus()
	}
	return true
}
