// Package exposure summarises a counterparty's financial position: totals,
// outstanding and overdue balances, and average age of unpaid invoices.
package exposure

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
)

// Store is the read-only persistence port.
type Store interface {
	ListInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error)
	ListInstruments(ctx context.Context, filter finance.InstrumentFilter) ([]finance.Instrument, error)
}

// Service computes exposure summaries.
type Service struct {
	store Store
}

// NewService builds a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Summary is the per-counterparty exposure report. OutstandingDays is the
// average age of unpaid invoices in whole days (DSO for receivables, DPO for
// payables); zero when nothing is unpaid.
type Summary struct {
	CounterpartyID     int64   `json:"counterparty_id"`
	TotalInvoiced      float64 `json:"total_invoiced"`
	TotalSettled       float64 `json:"total_settled"`
	TotalAdjustments   float64 `json:"total_adjustments"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	OverdueAmount      float64 `json:"overdue_amount"`
	OutstandingDays    int     `json:"outstanding_days"`
}

// Summarize aggregates all non-cancelled invoices and instruments for the
// counterparty as of asOf.
func (s *Service) Summarize(ctx context.Context, counterpartyID int64, direction finance.Direction, asOf time.Time) (Summary, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var (
		invoices    []finance.Invoice
		creditNotes []finance.Instrument
		debitNotes  []finance.Instrument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		invoices, err = s.store.ListInvoices(gctx, finance.InvoiceFilter{
			CounterpartyID: counterpartyID,
			Direction:      direction,
		})
		return err
	})
	g.Go(func() (err error) {
		creditNotes, err = s.store.ListInstruments(gctx, finance.InstrumentFilter{
			CounterpartyID: counterpartyID,
			Direction:      direction,
			Kind:           finance.KindCreditNote,
		})
		return err
	})
	g.Go(func() (err error) {
		debitNotes, err = s.store.ListInstruments(gctx, finance.InstrumentFilter{
			CounterpartyID: counterpartyID,
			Direction:      direction,
			Kind:           finance.KindDebitNote,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("exposure: fetch sources: %w", err)
	}

	summary := Summary{CounterpartyID: counterpartyID}
	var unpaidAgeDays float64
	var unpaidCount int
	for _, inv := range invoices {
		if inv.Status == finance.InvoiceStatusCancelled {
			continue
		}
		summary.TotalInvoiced += inv.Total
		summary.TotalSettled += inv.AmountPaid
		if inv.PastDue(asOf) {
			summary.OverdueAmount += inv.BalanceDue()
		}
		if inv.BalanceDue() > 0 && inv.Open() {
			unpaidAgeDays += asOf.Sub(inv.IssuedAt).Hours() / 24
			unpaidCount++
		}
	}
	// Adjustments cover credit and debit notes only; receipts, payments and
	// advances already flow through TotalSettled via amount_paid.
	for _, note := range creditNotes {
		summary.TotalAdjustments += note.AmountApplied
	}
	for _, note := range debitNotes {
		summary.TotalAdjustments += note.AmountApplied
	}
	// Settled counters include note applications; back them out so the two
	// components stay disjoint and outstanding = invoiced - settled - adjustments.
	summary.TotalSettled -= summary.TotalAdjustments
	if summary.TotalSettled < 0 {
		summary.TotalSettled = 0
	}

	summary.OutstandingBalance = summary.TotalInvoiced - summary.TotalSettled - summary.TotalAdjustments
	if unpaidCount > 0 {
		summary.OutstandingDays = int(math.Round(unpaidAgeDays / float64(unpaidCount)))
	}
	return summary, nil
}
