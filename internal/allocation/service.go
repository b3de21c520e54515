// Package allocation applies adjustment instruments against invoices while
// keeping both sides' counters and statuses consistent.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
)

// Store is the persistence port the engine needs.
type Store interface {
	GetInstrument(ctx context.Context, id int64) (*finance.Instrument, error)
	GetInvoice(ctx context.Context, id int64) (*finance.Invoice, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx finance.TxStore) error) error
}

// AuditLogger records reversal events; nil disables auditing.
type AuditLogger interface {
	Record(ctx context.Context, action, entity, entityID string, meta map[string]any) error
}

// Service is the allocation engine.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AllocateInput describes one application of an instrument to an invoice.
type AllocateInput struct {
	InstrumentID int64
	InvoiceID    int64
	// Amount is the requested amount; the engine clamps it to what the
	// instrument and invoice can absorb.
	Amount float64
	// AllowUnapproved waives the two-phase approval requirement for
	// credit/debit notes. Only the external ingestion channel sets it.
	AllowUnapproved bool
}

// Result reports the outcome of an allocation.
type Result struct {
	AllocationID        int64
	AppliedAmount       float64
	InstrumentRemaining float64
	InvoiceBalance      float64
	InstrumentStatus    finance.InstrumentStatus
	InvoiceStatus       finance.InvoiceStatus
}

const maxRetries = 3

// Allocate applies up to input.Amount of the instrument against the invoice
// inside one store transaction. Row locks are taken instrument-first then
// invoice-second. Serialization conflicts retry the whole call.
func (s *Service) Allocate(ctx context.Context, input AllocateInput) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", finance.ErrInvalidStatus)
	}

	var result Result
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = s.allocateOnce(ctx, input)
		if !errors.Is(err, finance.ErrSerialization) {
			return result, err
		}
		s.logger.Warn("allocation retry after serialization conflict",
			slog.Int64("instrument_id", input.InstrumentID),
			slog.Int64("invoice_id", input.InvoiceID),
			slog.Int("attempt", attempt+1),
		)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return result, err
}

func (s *Service) allocateOnce(ctx context.Context, input AllocateInput) (Result, error) {
	var result Result
	err := s.store.WithTx(ctx, func(ctx context.Context, tx finance.TxStore) error {
		ins, err := tx.GetInstrumentForUpdate(ctx, input.InstrumentID)
		if err != nil {
			return err
		}
		if !ins.Allocatable() {
			return finance.ErrInvalidStatus
		}
		if ins.Kind.RequiresApproval() && ins.Status == finance.InstrumentStatusPending && !input.AllowUnapproved {
			return finance.ErrNotApproved
		}
		remaining := ins.Remaining()
		if remaining <= 0 {
			return finance.ErrInsufficientInstrumentBalance
		}

		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		// An instrument only ever settles its own counterparty's book;
		// exposure math on both parties breaks otherwise.
		if ins.CounterpartyID != inv.CounterpartyID || ins.Direction != inv.Direction {
			return finance.ErrCounterpartyMismatch
		}
		if !inv.Open() {
			if inv.Status == finance.InvoiceStatusPaid {
				return finance.ErrInvoiceAlreadySettled
			}
			return finance.ErrInvalidStatus
		}
		balanceDue := inv.BalanceDue()
		if balanceDue <= 0 {
			return finance.ErrInvoiceAlreadySettled
		}

		applyAmount := input.Amount
		if remaining < applyAmount {
			applyAmount = remaining
		}
		if balanceDue < applyAmount {
			applyAmount = balanceDue
		}

		row, err := tx.InsertAllocation(ctx, ins.ID, inv.ID, applyAmount, nil)
		if err != nil {
			return err
		}

		newApplied := ins.AmountApplied + applyAmount
		insStatus := finance.NextInstrumentStatus(ins.Status, ins.OriginalAmount, newApplied)
		// The legacy convenience pointer is only trustworthy when this
		// single call consumes the instrument in full.
		var appliedTo *int64
		if insStatus == finance.InstrumentStatusApplied {
			id := inv.ID
			appliedTo = &id
		}
		if err := tx.SetInstrumentApplied(ctx, ins.ID, newApplied, insStatus, appliedTo); err != nil {
			return err
		}

		newPaid := inv.AmountPaid + applyAmount
		invStatus := finance.NextInvoiceStatus(inv.Status, inv.Total, newPaid)
		if err := tx.SetInvoicePaid(ctx, inv.ID, newPaid, invStatus); err != nil {
			return err
		}

		result = Result{
			AllocationID:        row.ID,
			AppliedAmount:       applyAmount,
			InstrumentRemaining: remaining - applyAmount,
			InvoiceBalance:      balanceDue - applyAmount,
			InstrumentStatus:    insStatus,
			InvoiceStatus:       invStatus,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ReverseInput identifies a prior allocation to undo.
type ReverseInput struct {
	AllocationID int64
	Reason       string
	RequestedBy  int64
}

// Reverse writes a negative counter-allocation that backs out a prior
// application. The original row is never edited; the append-only allocation
// list is the audit trail.
func (s *Service) Reverse(ctx context.Context, input ReverseInput, audit AuditLogger) (Result, error) {
	var result Result
	err := s.store.WithTx(ctx, func(ctx context.Context, tx finance.TxStore) error {
		orig, err := tx.GetAllocation(ctx, input.AllocationID)
		if err != nil {
			return err
		}
		if orig.Amount <= 0 {
			return fmt.Errorf("%w: cannot reverse a reversal", finance.ErrInvalidStatus)
		}

		ins, err := tx.GetInstrumentForUpdate(ctx, orig.InstrumentID)
		if err != nil {
			return err
		}
		inv, err := tx.GetInvoiceForUpdate(ctx, orig.InvoiceID)
		if err != nil {
			return err
		}

		// Counters never go negative, even if part of the allocation was
		// already backed out by an earlier reversal.
		amount := orig.Amount
		if ins.AmountApplied < amount || inv.AmountPaid < amount {
			return fmt.Errorf("%w: allocation already reversed", finance.ErrInvalidStatus)
		}

		origID := orig.ID
		row, err := tx.InsertAllocation(ctx, ins.ID, inv.ID, -amount, &origID)
		if err != nil {
			return err
		}

		newApplied := ins.AmountApplied - amount
		insStatus := finance.NextInstrumentStatus(ins.Status, ins.OriginalAmount, newApplied)
		if err := tx.SetInstrumentApplied(ctx, ins.ID, newApplied, insStatus, nil); err != nil {
			return err
		}

		newPaid := inv.AmountPaid - amount
		invStatus := finance.NextInvoiceStatus(inv.Status, inv.Total, newPaid)
		if err := tx.SetInvoicePaid(ctx, inv.ID, newPaid, invStatus); err != nil {
			return err
		}

		result = Result{
			AllocationID:        row.ID,
			AppliedAmount:       -amount,
			InstrumentRemaining: ins.OriginalAmount - newApplied,
			InvoiceBalance:      inv.Total - newPaid,
			InstrumentStatus:    insStatus,
			InvoiceStatus:       invStatus,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if audit != nil {
		meta := map[string]any{
			"allocation_id": input.AllocationID,
			"reason":        input.Reason,
			"amount":        -result.AppliedAmount,
		}
		if err := audit.Record(ctx, "allocation.reverse", "allocation", fmt.Sprintf("%d", result.AllocationID), meta); err != nil {
			s.logger.Error("record reversal audit", slog.Any("error", err))
		}
	}
	return result, nil
}
