// Package tui is the terminal front end of the allocation grid.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flower-backoffice/internal/allocation"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the model drives. Prices persists confirmed
// price edits; the orchestrator owns transfer and disposal writes.
type Deps struct {
	Sources      allocation.Sources
	Orchestrator *allocation.Orchestrator
	Prices       allocation.PriceChangeSink
	Filter       allocation.LotFilter
	Keys         allocation.Keymap
	Log          *logrus.Logger
	Timeout      time.Duration
}

type gridLoadedMsg struct{ grid *allocation.Grid }

type loadFailedMsg struct{ err error }

type commitDoneMsg struct {
	report *allocation.CommitReport
	lots   []allocation.Lot
}

type priceSavedMsg struct {
	lot    allocation.LotID
	change allocation.PriceChange
}

type priceFailedMsg struct {
	lot   allocation.LotID
	price decimal.Decimal
	err   error
}

// banner collects grid notifications; the model is copied by value so the
// listener writes through a pointer.
type banner struct {
	text string
}

type Model struct {
	ctx  context.Context
	deps Deps
	date time.Time

	grid       *allocation.Grid
	loading    bool
	committing bool
	message    string
	isError    bool
	banner     *banner

	width  int
	height int
}

func New(ctx context.Context, date time.Time, deps Deps) Model {
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	return Model{
		ctx:     ctx,
		deps:    deps,
		date:    date,
		loading: true,
		banner:  &banner{},
	}
}

// Grid exposes the loaded grid, nil until loading finished.
func (m Model) Grid() *allocation.Grid { return m.grid }

func (m Model) Message() string { return m.message }

func (m Model) Init() tea.Cmd {
	return m.loadGrid()
}

func (m Model) loadGrid() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.deps.Timeout)
		defer cancel()
		g, err := allocation.Load(ctx, m.date, m.deps.Filter, m.deps.Sources)
		if err != nil {
			return loadFailedMsg{err}
		}
		return gridLoadedMsg{g}
	}
}

func (m Model) savePrice(p allocation.PendingPrice) tea.Cmd {
	sink := m.deps.Prices
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.deps.Timeout)
		defer cancel()
		saved, err := sink.CreatePriceChange(ctx, allocation.PriceChangeRequest{
			Item:     p.Change.ItemID,
			Lot:      p.Lot,
			OldPrice: p.Change.OldPrice,
			NewPrice: p.Change.NewPrice,
		})
		if err != nil {
			return priceFailedMsg{lot: p.Lot, price: p.Change.NewPrice, err: err}
		}
		if saved.ItemID == 0 {
			saved.ItemID = p.Change.ItemID
		}
		if saved.ChangedAt.IsZero() {
			saved.ChangedAt = p.Change.ChangedAt
		}
		return priceSavedMsg{lot: p.Lot, change: saved}
	}
}

func (m Model) runCommit(plan *allocation.Plan) tea.Cmd {
	orch := m.deps.Orchestrator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.deps.Timeout)
		defer cancel()
		report := orch.Execute(ctx, plan)
		lots := orch.Reload(ctx, report)
		return commitDoneMsg{report: report, lots: lots}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case gridLoadedMsg:
		m.loading = false
		m.grid = msg.grid
		if m.deps.Keys != nil {
			m.grid.SetKeymap(m.deps.Keys)
		}
		m.grid.Subscribe(m.banner.listen())
		m.setInfo(fmt.Sprintf("%d lots, %d stores", len(m.grid.Rows()), len(m.grid.Stores())))
		return m, nil

	case loadFailedMsg:
		m.loading = false
		m.setError(fmt.Sprintf("load failed: %v", msg.err))
		m.deps.Log.WithError(msg.err).Error("grid load failed")
		return m, nil

	case commitDoneMsg:
		m.committing = false
		m.deps.Orchestrator.Finish(m.grid, msg.report, msg.lots)
		m.applyReport(msg.report)
		return m, nil

	case priceSavedMsg:
		m.grid.RecordPriceChange(msg.lot, msg.change)
		m.setInfo(fmt.Sprintf("price %s → %s saved", msg.change.OldPrice.String(), msg.change.NewPrice.String()))
		return m, nil

	case priceFailedMsg:
		m.grid.Ledger().Restage(msg.lot, msg.price)
		m.setError(fmt.Sprintf("price not saved: %v", msg.err))
		m.deps.Log.WithError(msg.err).WithField("lot", msg.lot).Warn("price change failed")
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.grid == nil {
		if key == "q" {
			return m, tea.Quit
		}
		return m, nil
	}

	m.banner.text = ""
	out := m.grid.HandleKey(key)

	var cmds []tea.Cmd
	if m.deps.Prices != nil {
		for _, p := range out.Prices {
			cmds = append(cmds, m.savePrice(p))
		}
	}
	if out.Commit {
		if cmd := m.startCommit(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	} else if b, ok := m.grid.Keymap().Lookup(key); ok && b.Action == allocation.ActionCommit {
		m.explainBlockedCommit()
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) startCommit() tea.Cmd {
	plan, err := m.deps.Orchestrator.Plan(m.grid)
	switch {
	case errors.Is(err, allocation.ErrCommitInFlight):
		m.setError("a commit is already running")
		return nil
	case errors.Is(err, allocation.ErrOverflow):
		m.setError("cannot commit: " + err.Error())
		return nil
	case errors.Is(err, allocation.ErrNothingToCommit):
		m.setError("nothing to commit")
		return nil
	case err != nil:
		m.setError(err.Error())
		return nil
	}
	m.committing = true
	m.setInfo(fmt.Sprintf("committing %d records…", len(plan.Records)))
	m.deps.Log.WithField("records", len(plan.Records)).Info("commit started")
	return m.runCommit(plan)
}

func (m *Model) explainBlockedCommit() {
	if _, _, open := m.grid.ReasonGate(); open {
		m.setError("choose a disposal reason first")
		return
	}
	if rows := m.grid.OverflowRows(); len(rows) > 0 {
		m.setError(fmt.Sprintf("cannot commit: %d row(s) exceed remaining stock", len(rows)))
		return
	}
	m.setError("nothing to commit")
}

func (m *Model) applyReport(report *allocation.CommitReport) {
	fields := logrus.Fields{
		"transfers": report.Transfers,
		"disposals": report.Disposals,
		"failed":    report.Errors(),
	}
	for _, res := range report.Results {
		if res.Err != nil {
			m.deps.Log.WithError(res.Err).WithField("record", res.Record.Label()).Warn("commit record failed")
		}
	}

	msg := report.Summary()
	if len(report.Skipped) > 0 {
		msg += "; skipped without reason: " + strings.Join(report.Skipped, ", ")
	}
	if report.ReloadErr != nil {
		msg += "; reload failed: " + report.ReloadErr.Error()
		m.deps.Log.WithError(report.ReloadErr).Warn("reload after commit failed")
	}

	if report.Errors() > 0 {
		m.setError(msg)
		m.deps.Log.WithFields(fields).Warn("commit finished with errors")
		return
	}
	m.setInfo(msg)
	m.deps.Log.WithFields(fields).Info("commit finished")
}

func (m *Model) setInfo(s string) {
	m.message, m.isError = s, false
}

func (m *Model) setError(s string) {
	m.message, m.isError = s, true
}

func (b *banner) listen() allocation.Listener {
	return func(n allocation.Notification) {
		switch n.Kind {
		case allocation.NotifyReasonRequired:
			b.text = fmt.Sprintf("choose a disposal reason for %d", n.Quantity)
		case allocation.NotifyRowLocked:
			b.text = "row locked"
		case allocation.NotifyRowUnlocked:
			b.text = "row unlocked"
		case allocation.NotifyCleared:
			b.text = "all entries cleared"
		}
	}
}
