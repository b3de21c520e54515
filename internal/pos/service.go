// Package pos ingests adjustment instruments from the external point-of-sale
// channel: validation, per-terminal rate limiting, idempotent creation and
// optional immediate allocation with balanced ledger lines.
package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/NCGHoldings/StoresONE-sub004/internal/allocation"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/journal"
)

// Store is the persistence port for ingestion.
type Store interface {
	GetCounterpartyByCode(ctx context.Context, code string) (*finance.Counterparty, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*finance.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*finance.Invoice, error)
	GetInstrumentByExternalRef(ctx context.Context, externalRef string) (*finance.Instrument, error)
	CreateInstrument(ctx context.Context, input finance.CreateInstrumentInput) (*finance.Instrument, error)
}

// Allocator applies instruments to invoices; satisfied by *allocation.Service.
type Allocator interface {
	Allocate(ctx context.Context, input allocation.AllocateInput) (allocation.Result, error)
}

// JournalPoster posts balanced ledger entries; satisfied by *journal.Service.
type JournalPoster interface {
	Post(ctx context.Context, input journal.PostInput) (*journal.Entry, error)
}

// Service handles adjustment ingestion.
type Service struct {
	store     Store
	allocator Allocator
	journals  JournalPoster
	limiter   *RateLimiter
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(store Store, allocator Allocator, journals JournalPoster, limiter *RateLimiter, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		allocator: allocator,
		journals:  journals,
		limiter:   limiter,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Ingest processes one adjustment submission. Duplicate submissions of the
// same external transaction id return the original outcome and create no new
// rows; the unique external_ref constraint resolves concurrent duplicates.
func (s *Service) Ingest(ctx context.Context, req AdjustmentRequest) (*AdjustmentResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, channelErr(CodeInvalidPayload, err.Error())
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.TerminalID)
		if err != nil {
			s.logger.Warn("pos rate limiter unavailable", slog.Any("error", err))
		}
		if !allowed {
			return nil, channelErr(CodeRateLimitExceeded, "terminal submission rate exceeded")
		}
	}

	// Fast-path idempotency lookup before creating anything.
	if existing, err := s.store.GetInstrumentByExternalRef(ctx, req.ExternalTransactionID); err == nil {
		return s.replay(ctx, existing)
	} else if !errors.Is(err, finance.ErrNotFound) {
		return nil, s.internal("idempotency lookup", err)
	}

	counterparty, err := s.store.GetCounterpartyByCode(ctx, req.CounterpartyCode)
	if errors.Is(err, finance.ErrNotFound) {
		return nil, channelErr(CodeCounterpartyMissing, fmt.Sprintf("counterparty %q not found", req.CounterpartyCode))
	}
	if err != nil {
		return nil, s.internal("resolve counterparty", err)
	}

	var linkedInvoice *finance.Invoice
	if req.LinkedInvoiceNumber != "" {
		linkedInvoice, err = s.store.GetInvoiceByNumber(ctx, req.LinkedInvoiceNumber)
		if errors.Is(err, finance.ErrNotFound) {
			return nil, channelErr(CodeInvoiceMissing, fmt.Sprintf("invoice %q not found", req.LinkedInvoiceNumber))
		}
		if err != nil {
			return nil, s.internal("resolve invoice", err)
		}
		if linkedInvoice.CounterpartyID != counterparty.ID {
			return nil, channelErr(CodeInvoiceMismatch, "invoice does not belong to the resolved counterparty")
		}
	}

	input := finance.CreateInstrumentInput{
		CounterpartyID: counterparty.ID,
		Direction:      finance.DirectionReceivable,
		Kind:           finance.KindCreditNote,
		OriginalAmount: req.Amount,
		Reason:         req.Reason,
		ExternalRef:    req.ExternalTransactionID,
		// The channel is authenticated; the two-phase approval flow is
		// waived and the note lands directly in APPROVED.
		Status:   finance.InstrumentStatusApproved,
		IssuedAt: time.Now(),
	}
	if linkedInvoice != nil {
		id := linkedInvoice.ID
		input.LinkedInvoiceID = &id
	}

	instrument, err := s.store.CreateInstrument(ctx, input)
	if errors.Is(err, finance.ErrDuplicateExternalRef) {
		// Lost the race against an identical concurrent submission.
		existing, lookupErr := s.store.GetInstrumentByExternalRef(ctx, req.ExternalTransactionID)
		if lookupErr != nil {
			return nil, s.internal("duplicate replay lookup", lookupErr)
		}
		return s.replay(ctx, existing)
	}
	if err != nil {
		return nil, s.internal("create instrument", err)
	}

	result := &AdjustmentResult{
		InstrumentNumber: instrument.Number,
		Status:           string(instrument.Status),
	}
	if linkedInvoice != nil {
		result.InvoiceBalance = linkedInvoice.BalanceDue()
	}

	if req.ApplyImmediately && linkedInvoice != nil {
		applied, err := s.allocator.Allocate(ctx, allocation.AllocateInput{
			InstrumentID:    instrument.ID,
			InvoiceID:       linkedInvoice.ID,
			Amount:          req.Amount,
			AllowUnapproved: true,
		})
		if err != nil {
			return nil, s.internal("apply adjustment", err)
		}
		result.AmountApplied = applied.AppliedAmount
		result.InvoiceBalance = applied.InvoiceBalance
		result.Status = string(applied.InstrumentStatus)

		if _, err := s.journals.Post(ctx, journal.PostInput{
			Date:         time.Now(),
			SourceModule: "pos",
			SourceRef:    uuid.New(),
			Memo:         fmt.Sprintf("POS adjustment %s applied to %s", instrument.Number, linkedInvoice.Number),
			Lines: []journal.LineInput{
				{Account: journal.AccountSalesReturns, Debit: applied.AppliedAmount},
				{Account: journal.AccountReceivablesControl, Credit: applied.AppliedAmount},
			},
		}); err != nil {
			return nil, s.internal("post ledger lines", err)
		}
	}

	return result, nil
}

// replay rebuilds the original call's result from the stored instrument.
func (s *Service) replay(ctx context.Context, instrument *finance.Instrument) (*AdjustmentResult, error) {
	result := &AdjustmentResult{
		InstrumentNumber: instrument.Number,
		AmountApplied:    instrument.AmountApplied,
		Status:           string(instrument.Status),
	}
	invoiceID := instrument.AppliedToInvoiceID
	if invoiceID == nil {
		invoiceID = instrument.LinkedInvoiceID
	}
	if invoiceID != nil {
		if inv, err := s.store.GetInvoice(ctx, *invoiceID); err == nil {
			result.InvoiceBalance = inv.BalanceDue()
		}
	}
	return result, nil
}

func (s *Service) internal(stage string, err error) error {
	s.logger.Error("pos ingestion failed", slog.String("stage", stage), slog.Any("error", err))
	return channelErr(CodeInternalError, "adjustment could not be processed")
}
