package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"flower-backoffice/internal/allocation"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var workDay = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu        sync.Mutex
	lots      []allocation.Lot
	transfers []allocation.TransferRequest
	disposals []allocation.DisposalRequest
	prices    []allocation.PriceChangeRequest
	failStore allocation.DestinationID
}

func (f *fakeBackend) ListLots(ctx context.Context, _ allocation.LotFilter) ([]allocation.Lot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]allocation.Lot(nil), f.lots...), nil
}

func (f *fakeBackend) ListDestinations(ctx context.Context) ([]allocation.Destination, error) {
	return []allocation.Destination{
		{ID: 1, Kind: allocation.DestinationStore, Name: "Shibuya", SortOrder: 1},
		{ID: 2, Kind: allocation.DestinationStore, Name: "Ebisu", SortOrder: 2},
	}, nil
}

func (f *fakeBackend) LatestPrices(ctx context.Context) (map[allocation.ItemID]decimal.Decimal, error) {
	return nil, nil
}

func (f *fakeBackend) PriceHistory(ctx context.Context, item allocation.ItemID) ([]allocation.PriceChange, error) {
	return nil, nil
}

func (f *fakeBackend) take(lot allocation.LotID, qty int) {
	for i := range f.lots {
		if f.lots[i].ID == lot {
			f.lots[i].Remaining -= qty
		}
	}
}

func (f *fakeBackend) CreateTransfer(ctx context.Context, req allocation.TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Destination == f.failStore {
		return errors.New("store closed")
	}
	f.transfers = append(f.transfers, req)
	f.take(req.Lot, req.Quantity)
	return nil
}

func (f *fakeBackend) CreateDisposal(ctx context.Context, req allocation.DisposalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposals = append(f.disposals, req)
	f.take(req.Lot, req.Quantity)
	return nil
}

func (f *fakeBackend) CreatePriceChange(ctx context.Context, req allocation.PriceChangeRequest) (allocation.PriceChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, req)
	return allocation.PriceChange{ID: uint(len(f.prices)), ItemID: req.Item, OldPrice: req.OldPrice,
		NewPrice: req.NewPrice, ChangedAt: workDay}, nil
}

func newBackend() *fakeBackend {
	return &fakeBackend{lots: []allocation.Lot{
		{ID: 1, ItemID: 10, ItemName: "Rose", Quantity: 200, Remaining: 200,
			WholesalePrice: decimal.NewNullDecimal(decimal.NewFromInt(80)), ArrivedAt: workDay},
		{ID: 2, ItemID: 11, ItemName: "Lily", Quantity: 50, Remaining: 50, ArrivedAt: workDay.AddDate(0, 0, -1)},
	}}
}

func newTestModel(t *testing.T, be *fakeBackend) Model {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	orch := allocation.NewOrchestrator(be, be, be, allocation.LotFilter{})
	m := New(context.Background(), workDay, Deps{
		Sources:      allocation.Sources{Lots: be, Destinations: be, Prices: be},
		Orchestrator: orch,
		Prices:       be,
		Log:          log,
	})
	m = run(t, m, m.Init())
	if m.Grid() == nil {
		t.Fatalf("grid not loaded: %s", m.Message())
	}
	return m
}

// run executes cmd and feeds every resulting message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			m = run(t, m, c)
		}
		return m
	}
	next, follow := m.Update(msg)
	return run(t, next.(Model), follow)
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(keyMsg(k))
		m = run(t, next.(Model), cmd)
	}
	return m
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestModel_CommitWritesAndReloads(t *testing.T) {
	be := newBackend()
	m := newTestModel(t, be)

	m = press(t, m, "down", "a", "tab", "s")
	if q := m.Grid().Quantity(1, 1); q != 100 {
		t.Fatalf("Shibuya quantity = %d, want 100", q)
	}
	if q := m.Grid().Quantity(1, 2); q != 10 {
		t.Fatalf("Ebisu quantity = %d, want 10", q)
	}

	m = press(t, m, "ctrl+s")

	if len(be.transfers) != 2 {
		t.Fatalf("transfers = %+v", be.transfers)
	}
	if !be.transfers[0].UnitPrice.Equal(decimal.NewFromInt(80)) || be.transfers[0].IdempotencyKey == "" {
		t.Errorf("transfer[0] = %+v", be.transfers[0])
	}
	if m.Message() != "2 transfers, 0 disposals registered" {
		t.Errorf("message = %q", m.Message())
	}
	row, _ := m.Grid().Row(1)
	if row.Total() != 0 || row.Lot.Remaining != 90 {
		t.Errorf("after reload total=%d remaining=%d", row.Total(), row.Lot.Remaining)
	}
	if _, active := m.Grid().Cursor(); active {
		t.Errorf("cursor should reset after a successful commit")
	}
}

func TestModel_PartialFailureKeepsFailedCell(t *testing.T) {
	be := newBackend()
	be.failStore = 2
	m := newTestModel(t, be)

	m = press(t, m, "down", "s", "tab", "s", "ctrl+s")
	if !strings.Contains(m.Message(), "success: 1 / error: 1") || !strings.Contains(m.Message(), "Rose→Ebisu") {
		t.Fatalf("message = %q", m.Message())
	}
	if q := m.Grid().Quantity(1, 2); q != 10 {
		t.Errorf("failed cell should keep its value, got %d", q)
	}
	if q := m.Grid().Quantity(1, 1); q != 0 {
		t.Errorf("succeeded cell should clear, got %d", q)
	}
}

func TestModel_OverflowBlocksCommit(t *testing.T) {
	be := newBackend()
	m := newTestModel(t, be)

	m = press(t, m, "down", "3", "0", "0", "ctrl+s")
	if len(be.transfers) != 0 {
		t.Fatalf("overflowing grid wrote %+v", be.transfers)
	}
	if !strings.Contains(m.Message(), "exceed remaining stock") {
		t.Errorf("message = %q", m.Message())
	}
	if !strings.Contains(m.View(), "300") {
		t.Errorf("view should show the typed quantity")
	}
}

func TestModel_DisposalNeedsReason(t *testing.T) {
	be := newBackend()
	m := newTestModel(t, be)

	m = press(t, m, "down", "w", "5", "enter")
	if _, qty, open := m.Grid().ReasonGate(); !open || qty != 5 {
		t.Fatalf("reason gate open=%v qty=%d", open, qty)
	}
	if !strings.Contains(m.View(), "reason?") {
		t.Errorf("view should show the reason prompt")
	}

	m = press(t, m, "ctrl+s")
	if len(be.disposals) != 0 {
		t.Fatalf("commit ran while the gate was open")
	}

	m = press(t, m, "2", "ctrl+s")
	if len(be.disposals) != 1 || be.disposals[0].Reason != allocation.ReasonLost {
		t.Fatalf("disposals = %+v", be.disposals)
	}
	if m.Message() != "0 transfers, 1 disposals registered" {
		t.Errorf("message = %q", m.Message())
	}
}

func TestModel_PriceConfirmPersists(t *testing.T) {
	be := newBackend()
	m := newTestModel(t, be)

	m = press(t, m, "down", "p", "backspace", "backspace", "１", "５", "０", "enter")
	if len(be.prices) != 1 {
		t.Fatalf("price changes = %+v", be.prices)
	}
	got := be.prices[0]
	if got.Item != 10 || !got.OldPrice.Equal(decimal.NewFromInt(80)) || !got.NewPrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("price change = %+v", got)
	}
	if h := m.Grid().Ledger().History(1); len(h) != 1 || h[0].ID != 1 {
		t.Errorf("history = %+v", h)
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	m := newTestModel(t, newBackend())
	_, cmd := m.Update(keyMsg("ctrl+c"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("ctrl+c should quit")
	}
}

func TestModel_SavedPriceAppliesToEveryLotOfItem(t *testing.T) {
	be := newBackend()
	be.lots = append(be.lots, allocation.Lot{ID: 3, ItemID: 10, ItemName: "Rose", Quantity: 40, Remaining: 40,
		WholesalePrice: decimal.NewNullDecimal(decimal.NewFromInt(80)), ArrivedAt: workDay.AddDate(0, 0, -2)})
	m := newTestModel(t, be)

	next, _ := m.Update(priceSavedMsg{lot: 1, change: allocation.PriceChange{
		ID: 1, ItemID: 10, OldPrice: decimal.NewFromInt(80), NewPrice: decimal.NewFromInt(150), ChangedAt: workDay,
	}})
	m = next.(Model)

	ledger := m.Grid().Ledger()
	if !ledger.CurrentPrice(3).Equal(decimal.NewFromInt(150)) {
		t.Errorf("lot 3 price = %s, want 150", ledger.CurrentPrice(3))
	}
	if h := ledger.History(3); len(h) != 1 || h[0].ID != 1 {
		t.Errorf("lot 3 history = %+v", h)
	}
}

func TestModel_FailedPriceStaysStaged(t *testing.T) {
	m := newTestModel(t, newBackend())

	next, _ := m.Update(priceFailedMsg{lot: 1, price: decimal.NewFromInt(120), err: errors.New("offline")})
	m = next.(Model)

	if p, ok := m.Grid().Ledger().Staged(1); !ok || !p.Equal(decimal.NewFromInt(120)) {
		t.Errorf("staged = %s ok=%v, want 120", p, ok)
	}
	if !strings.Contains(m.Message(), "price not saved") {
		t.Errorf("message = %q", m.Message())
	}
}
