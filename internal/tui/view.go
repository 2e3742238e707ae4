package tui

import (
	"fmt"
	"strings"
	"time"

	"flower-backoffice/internal/allocation"

	"github.com/charmbracelet/lipgloss"
)

const (
	itemWidth  = 18
	cellWidth  = 8
	priceWidth = 9
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dayStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	headerStyle   = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	overflowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	lockedStyle   = lipgloss.NewStyle().Faint(true)
	soldOutStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	gateStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
)

const helpText = "←↑↓→/tab move · a/s/d/f ±100/±10 · enter lock row · w disposal · p price · ctrl+u unlock · ctrl+x clear · ctrl+s commit · ctrl+c quit"

func pad(s string, width int, right bool) string {
	st := lipgloss.NewStyle().Width(width)
	if right {
		st = st.Align(lipgloss.Right)
	}
	return st.Render(s)
}

func (m Model) View() string {
	if m.loading {
		return "\n  Loading arrivals…\n"
	}
	if m.grid == nil {
		return "\n  " + errorStyle.Render(m.message) + "\n\n  q to quit\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" Arrival allocation · "+m.grid.Date().Format("2006-01-02")) + "\n\n")
	b.WriteString(m.renderHeader() + "\n")

	cur, active := m.grid.Cursor()
	var lastDay time.Time
	for i, row := range m.grid.Rows() {
		y, mo, d := row.Lot.ArrivedAt.Date()
		day := time.Date(y, mo, d, 0, 0, 0, 0, row.Lot.ArrivedAt.Location())
		if i == 0 || !day.Equal(lastDay) {
			b.WriteString(dayStyle.Render("── "+day.Format("01/02")+" ──") + "\n")
			lastDay = day
		}
		var rowCur *allocation.Cursor
		if active && cur.Row == i {
			rowCur = &cur
		}
		b.WriteString(m.renderRow(row, rowCur) + "\n")
	}

	if lot, qty, open := m.grid.ReasonGate(); open {
		name := ""
		if row, ok := m.grid.Row(lot); ok {
			name = row.Lot.ItemName
		}
		opts := make([]string, 0, len(allocation.DisposalReasons))
		for key, r := range allocation.DisposalReasons {
			opts = append(opts, fmt.Sprintf("%d %s", key+1, r.Label()))
		}
		b.WriteString("\n" + gateStyle.Render(fmt.Sprintf("Dispose %d × %s, reason? %s  (esc cancels)", qty, name, strings.Join(opts, "  "))) + "\n")
	}

	b.WriteString("\n")
	if m.banner.text != "" {
		b.WriteString(infoStyle.Render(m.banner.text) + "\n")
	}
	if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message) + "\n")
		} else {
			b.WriteString(infoStyle.Render(m.message) + "\n")
		}
	}
	if m.committing {
		b.WriteString(helpStyle.Render("commit in progress…") + "\n")
	}
	b.WriteString(helpStyle.Render(helpText) + "\n")
	return b.String()
}

func (m Model) renderHeader() string {
	cols := []string{pad("Item", itemWidth, false), pad("Arrived", cellWidth, true), pad("Price", priceWidth, true)}
	for _, s := range m.grid.Stores() {
		st := headerStyle
		if s.Color != "" {
			st = st.Foreground(lipgloss.Color(s.Color))
		}
		cols = append(cols, st.Render(pad(s.Name, cellWidth, true)))
	}
	cols = append(cols,
		pad("Disposal", cellWidth+4, true),
		pad("Total", cellWidth, true),
		pad("Remain", cellWidth, true),
	)
	return headerStyle.Render(strings.Join(cols, " "))
}

func qtyText(n int) string {
	if n == 0 {
		return "·"
	}
	return fmt.Sprint(n)
}

func (m Model) renderRow(row *allocation.Row, cur *allocation.Cursor) string {
	id := row.Lot.ID
	ledger := m.grid.Ledger()

	price := ledger.CurrentPrice(id).StringFixed(0)
	if staged, ok := ledger.Staged(id); ok {
		price = staged.StringFixed(0) + "*"
	}
	priceCell := pad(price, priceWidth, true)
	if cur != nil && cur.Field == allocation.FieldPrice {
		priceCell = cursorStyle.Render(pad(m.grid.InputText(), priceWidth, true))
	}

	cols := []string{
		pad(row.Lot.ItemName, itemWidth, false),
		pad(fmt.Sprint(row.Lot.Quantity), cellWidth, true),
		priceCell,
	}
	for i, s := range m.grid.Stores() {
		text := pad(qtyText(row.Quantity(s.ID)), cellWidth, true)
		if cur != nil && cur.Field == allocation.FieldCell && cur.Column == i {
			text = cursorStyle.Render(pad(m.grid.InputText(), cellWidth, true))
		}
		cols = append(cols, text)
	}

	disposal := qtyText(row.DisposalQuantity())
	if r := row.DisposalReason(); r != "" {
		disposal += " " + string(r)[:1]
	} else if row.AwaitingReason() {
		disposal += " ?"
	}
	disposalCell := pad(disposal, cellWidth+4, true)
	if cur != nil && cur.Field == allocation.FieldDisposal {
		disposalCell = cursorStyle.Render(pad(m.grid.InputText(), cellWidth+4, true))
	}
	cols = append(cols,
		disposalCell,
		pad(fmt.Sprint(row.Total()), cellWidth, true),
		pad(fmt.Sprint(row.Remaining()), cellWidth, true),
	)

	line := strings.Join(cols, " ")
	switch {
	case row.Overflow():
		return overflowStyle.Render(line)
	case row.Lot.SoldOut():
		return soldOutStyle.Render(line)
	case row.Locked():
		return lockedStyle.Render(line + " locked")
	}
	return line
}
