package allocation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type RecordKind int

const (
	RecordTransfer RecordKind = iota
	RecordDisposal
)

// CommitRecord is one remote write derived from a non-zero cell or a
// disposal entry with a reason.
type CommitRecord struct {
	Kind           RecordKind
	Lot            Lot
	Destination    Destination
	Quantity       int
	UnitPrice      decimal.Decimal
	WholesalePrice decimal.NullDecimal
	Reason         DisposalReason
	Date           time.Time
	IdempotencyKey string
}

func (r CommitRecord) Label() string {
	if r.Kind == RecordDisposal {
		return "disposal: " + r.Lot.ItemName
	}
	return r.Lot.ItemName + "→" + r.Destination.Name
}

type RecordResult struct {
	Record CommitRecord
	Err    error
}

type CommitReport struct {
	Results   []RecordResult
	Transfers int
	Disposals int
	Failed    []string
	// Skipped lists disposal entries left out for lack of a reason.
	Skipped []string

	Reloaded  bool
	ReloadErr error
}

func (r *CommitReport) Succeeded() int {
	return r.Transfers + r.Disposals
}

func (r *CommitReport) Errors() int {
	return len(r.Failed)
}

// Summary is the single user-facing line for a finished batch.
func (r *CommitReport) Summary() string {
	if r.Errors() == 0 {
		return fmt.Sprintf("%d transfers, %d disposals registered", r.Transfers, r.Disposals)
	}
	return fmt.Sprintf("success: %d / error: %d (%s)", r.Succeeded(), r.Errors(), strings.Join(r.Failed, ", "))
}

// Plan is the validated set of records for one commit.
type Plan struct {
	Date    time.Time
	Records []CommitRecord
	Skipped []string
}

// Orchestrator turns grid entries into independent remote writes.
// Only one commit may be in flight at a time.
type Orchestrator struct {
	lots        LotSource
	transfers   TransferSink
	disposals   DisposalSink
	filter      LotFilter
	parallelism int

	inFlight atomic.Bool
}

func NewOrchestrator(lots LotSource, transfers TransferSink, disposals DisposalSink, filter LotFilter) *Orchestrator {
	return &Orchestrator{
		lots:        lots,
		transfers:   transfers,
		disposals:   disposals,
		filter:      filter,
		parallelism: 1,
	}
}

// SetParallelism bounds concurrent remote writes. Values below 1 mean one.
func (o *Orchestrator) SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	o.parallelism = n
}

func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Plan validates the grid and claims the in-flight slot. Any overflowing row
// refuses the whole commit. Every successful Plan must be followed by Finish.
func (o *Orchestrator) Plan(g *Grid) (*Plan, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCommitInFlight
	}
	if rows := g.OverflowRows(); len(rows) > 0 {
		o.inFlight.Store(false)
		return nil, fmt.Errorf("%w: %d row(s)", ErrOverflow, len(rows))
	}
	records, skipped := g.commitRecords()
	if len(records) == 0 {
		o.inFlight.Store(false)
		return nil, ErrNothingToCommit
	}
	return &Plan{Date: g.date, Records: records, Skipped: skipped}, nil
}

// Execute issues every record and waits for all of them. A failed write does
// not stop its siblings.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan) *CommitReport {
	results := make([]RecordResult, len(plan.Records))

	var eg errgroup.Group
	eg.SetLimit(o.parallelism)
	for i, rec := range plan.Records {
		eg.Go(func() error {
			results[i] = RecordResult{Record: rec, Err: o.write(ctx, rec)}
			return nil
		})
	}
	_ = eg.Wait()

	report := &CommitReport{Results: results, Skipped: plan.Skipped}
	for _, res := range results {
		switch {
		case res.Err != nil:
			report.Failed = append(report.Failed, res.Record.Label())
		case res.Record.Kind == RecordTransfer:
			report.Transfers++
		default:
			report.Disposals++
		}
	}
	return report
}

func (o *Orchestrator) write(ctx context.Context, rec CommitRecord) error {
	if rec.Kind == RecordDisposal {
		return o.disposals.CreateDisposal(ctx, DisposalRequest{
			Item:           rec.Lot.ItemID,
			Lot:            rec.Lot.ID,
			Quantity:       rec.Quantity,
			Reason:         rec.Reason,
			Date:           rec.Date,
			IdempotencyKey: rec.IdempotencyKey,
		})
	}
	return o.transfers.CreateTransfer(ctx, TransferRequest{
		Destination:    rec.Destination.ID,
		Item:           rec.Lot.ItemID,
		Lot:            rec.Lot.ID,
		Quantity:       rec.Quantity,
		UnitPrice:      rec.UnitPrice,
		WholesalePrice: rec.WholesalePrice,
		Date:           rec.Date,
		IdempotencyKey: rec.IdempotencyKey,
	})
}

// Reload fetches fresh lots when at least one write succeeded.
func (o *Orchestrator) Reload(ctx context.Context, report *CommitReport) []Lot {
	if report.Succeeded() == 0 || o.lots == nil {
		return nil
	}
	lots, err := o.lots.ListLots(ctx, o.filter)
	if err != nil {
		report.ReloadErr = err
		return nil
	}
	report.Reloaded = true
	return lots
}

// Finish reconciles the grid with the report and releases the in-flight slot.
func (o *Orchestrator) Finish(g *Grid, report *CommitReport, lots []Lot) {
	defer o.inFlight.Store(false)
	g.reconcile(report, lots)
}

// CommitAll runs Plan, Execute, Reload and Finish in sequence.
func (o *Orchestrator) CommitAll(ctx context.Context, g *Grid) (*CommitReport, error) {
	plan, err := o.Plan(g)
	if err != nil {
		return nil, err
	}
	report := o.Execute(ctx, plan)
	lots := o.Reload(ctx, report)
	o.Finish(g, report, lots)
	return report, nil
}

// commitRecords walks rows in display order and stores in column order.
func (g *Grid) commitRecords() (records []CommitRecord, skipped []string) {
	for _, row := range g.rows {
		price := g.ledger.CurrentPrice(row.Lot.ID)
		for _, dest := range g.stores {
			c, ok := row.cells[dest.ID]
			if !ok || c.qty <= 0 {
				continue
			}
			records = append(records, CommitRecord{
				Kind:           RecordTransfer,
				Lot:            row.Lot,
				Destination:    dest,
				Quantity:       c.qty,
				UnitPrice:      price,
				WholesalePrice: row.Lot.WholesalePrice,
				Date:           g.date,
				IdempotencyKey: c.commitKey(),
			})
		}
		if row.disposal.qty <= 0 {
			continue
		}
		if row.reason == "" {
			skipped = append(skipped, "disposal: "+row.Lot.ItemName)
			continue
		}
		records = append(records, CommitRecord{
			Kind:           RecordDisposal,
			Lot:            row.Lot,
			Destination:    DisposalBucket,
			Quantity:       row.disposal.qty,
			Reason:         row.reason,
			Date:           g.date,
			IdempotencyKey: row.disposal.commitKey(),
		})
	}
	return records, skipped
}

// reconcile clears entries whose write succeeded, keyed by idempotency key so
// a value edited during the batch survives. After any success the locks and
// cursor reset and, when fresh lots arrived, rows are rebuilt around them.
func (g *Grid) reconcile(report *CommitReport, lots []Lot) {
	for _, res := range report.Results {
		if res.Err != nil {
			continue
		}
		row, ok := g.byLot[res.Record.Lot.ID]
		if !ok {
			continue
		}
		switch res.Record.Kind {
		case RecordTransfer:
			if c, ok := row.cells[res.Record.Destination.ID]; ok && c.key == res.Record.IdempotencyKey {
				delete(row.cells, res.Record.Destination.ID)
			}
		case RecordDisposal:
			if row.disposal.key == res.Record.IdempotencyKey {
				row.disposal = cell{}
				row.reason = ""
			}
		}
	}
	if report.Succeeded() == 0 {
		return
	}
	for _, r := range g.rows {
		r.unlock()
	}
	g.closeGate()
	g.clearFocus()
	if report.Reloaded {
		g.setLots(lots, g.byLot)
	}
	g.emit(Notification{Kind: NotifyCommitted})
}
