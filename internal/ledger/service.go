// Package ledger builds reconciliation statements and ageing summaries from
// the instrument store. All reads are derived fresh; nothing here mutates.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
)

// Tolerance is the currency minor-unit tolerance used when comparing the
// walked running balance against the formula-based closing balance.
const Tolerance = 0.01

// Store is the read-only persistence port for statement assembly.
type Store interface {
	ListInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error)
	ListInstruments(ctx context.Context, filter finance.InstrumentFilter) ([]finance.Instrument, error)
}

// Service computes statements and ageing summaries.
type Service struct {
	store Store
}

// NewService builds a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Statement reconstructs the counterparty's ledger over [from, to], both
// inclusive. The opening balance is rebuilt from face amounts dated before
// the period, not from current applied-amount snapshots, so the historical
// position is independent of later allocations. Lines sort by date
// ascending; at equal dates debits precede credits, preserving fetch order
// within each side.
func (s *Service) Statement(ctx context.Context, counterpartyID int64, from, to time.Time) (*Statement, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("ledger: period end %s before start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	// Range filters are date-inclusive; extend the end to cover the whole day.
	rangeEnd := to.Add(24*time.Hour - time.Nanosecond)

	var (
		priorInvoices, periodInvoices       []finance.Invoice
		priorInstruments, periodInstruments []finance.Instrument
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		priorInvoices, err = s.store.ListInvoices(gctx, finance.InvoiceFilter{
			CounterpartyID: counterpartyID,
			IssuedBefore:   from,
		})
		return err
	})
	g.Go(func() (err error) {
		periodInvoices, err = s.store.ListInvoices(gctx, finance.InvoiceFilter{
			CounterpartyID: counterpartyID,
			IssuedFrom:     from,
			IssuedTo:       rangeEnd,
		})
		return err
	})
	g.Go(func() (err error) {
		priorInstruments, err = s.store.ListInstruments(gctx, finance.InstrumentFilter{
			CounterpartyID: counterpartyID,
			IssuedBefore:   from,
		})
		return err
	})
	g.Go(func() (err error) {
		periodInstruments, err = s.store.ListInstruments(gctx, finance.InstrumentFilter{
			CounterpartyID: counterpartyID,
			IssuedFrom:     from,
			IssuedTo:       rangeEnd,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ledger: fetch statement sources: %w", err)
	}

	var opening float64
	for _, inv := range priorInvoices {
		if inv.Status == finance.InvoiceStatusCancelled {
			continue
		}
		opening += inv.Total
	}
	for _, ins := range priorInstruments {
		opening -= ins.OriginalAmount
	}

	transactions := make([]Transaction, 0, len(periodInvoices)+len(periodInstruments))
	var totalDebits, totalCredits float64
	for _, inv := range periodInvoices {
		if inv.Status == finance.InvoiceStatusCancelled {
			continue
		}
		transactions = append(transactions, Transaction{
			Date:        inv.IssuedAt,
			Type:        EntryDebit,
			Reference:   inv.Number,
			Description: describeInvoice(inv.Direction),
			Debit:       inv.Total,
		})
		totalDebits += inv.Total
	}
	for _, ins := range periodInstruments {
		transactions = append(transactions, Transaction{
			Date:        ins.IssuedAt,
			Type:        EntryCredit,
			Reference:   ins.Number,
			Description: describe(ins.Kind),
			Credit:      ins.OriginalAmount,
		})
		totalCredits += ins.OriginalAmount
	}

	// Stable: equal dates keep debits (appended first) ahead of credits.
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.Before(transactions[j].Date)
	})

	running := opening
	for i := range transactions {
		running += transactions[i].Debit - transactions[i].Credit
		transactions[i].Balance = running
	}

	closing := opening + totalDebits - totalCredits

	stmt := &Statement{
		CounterpartyID: counterpartyID,
		PeriodStart:    from,
		PeriodEnd:      to,
		OpeningBalance: opening,
		ClosingBalance: closing,
		TotalDebits:    totalDebits,
		TotalCredits:   totalCredits,
		Transactions:   transactions,
		Discrepancies:  []Discrepancy{},
	}

	if diff := math.Abs(running - closing); diff > Tolerance {
		stmt.Discrepancies = append(stmt.Discrepancies, Discrepancy{
			Description: "running balance does not reconcile with closing balance",
			Difference:  diff,
		})
	}

	return stmt, nil
}
