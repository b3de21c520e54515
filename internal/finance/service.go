package finance

import (
	"context"
	"fmt"
)

// StorePort defines the data access the document service needs.
type StorePort interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, from, to InvoiceStatus) error
	CreateInstrument(ctx context.Context, input CreateInstrumentInput) (*Instrument, error)
	GetInstrument(ctx context.Context, id int64) (*Instrument, error)
	ApproveInstrument(ctx context.Context, id int64) error
	ListAllocations(ctx context.Context, instrumentID int64) ([]Allocation, error)
	GetCounterparty(ctx context.Context, id int64) (*Counterparty, error)
}

// Service handles document lifecycle outside the allocation path: creation,
// issue, approval, cancellation. Paid/applied counters move only through the
// allocation engine.
type Service struct {
	store StorePort
}

// NewService builds a Service instance.
func NewService(store StorePort) *Service {
	return &Service{store: store}
}

// CreateInvoice validates and creates a draft invoice.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	if input.CounterpartyID == 0 {
		return nil, fmt.Errorf("%w: counterparty required", ErrInvalidStatus)
	}
	if input.Direction != DirectionReceivable && input.Direction != DirectionPayable {
		return nil, fmt.Errorf("%w: direction must be RECEIVABLE or PAYABLE", ErrInvalidStatus)
	}
	if input.Subtotal+input.TaxAmount <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidStatus)
	}
	if input.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: due date required", ErrInvalidStatus)
	}
	if _, err := s.store.GetCounterparty(ctx, input.CounterpartyID); err != nil {
		return nil, err
	}
	return s.store.CreateInvoice(ctx, input)
}

// IssueInvoice moves a draft invoice to SENT, freezing its amounts.
func (s *Service) IssueInvoice(ctx context.Context, id int64) error {
	return s.store.UpdateInvoiceStatus(ctx, id, InvoiceStatusDraft, InvoiceStatusSent)
}

// CancelInvoice cancels an invoice that has received no payments yet.
func (s *Service) CancelInvoice(ctx context.Context, id int64) error {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if inv.AmountPaid > 0 {
		return fmt.Errorf("%w: invoice has allocations", ErrInvalidStatus)
	}
	return s.store.UpdateInvoiceStatus(ctx, id, inv.Status, InvoiceStatusCancelled)
}

// CreateInstrument validates and creates an adjustment instrument. Credit
// and debit notes start PENDING and pass through approval; advances,
// receipts and payments are immediately allocatable.
func (s *Service) CreateInstrument(ctx context.Context, input CreateInstrumentInput) (*Instrument, error) {
	if input.CounterpartyID == 0 {
		return nil, fmt.Errorf("%w: counterparty required", ErrInvalidStatus)
	}
	if input.OriginalAmount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidStatus)
	}
	switch input.Kind {
	case KindCreditNote, KindDebitNote, KindAdvance, KindReceipt, KindPayment:
	default:
		return nil, fmt.Errorf("%w: unknown instrument kind %q", ErrInvalidStatus, input.Kind)
	}
	if _, err := s.store.GetCounterparty(ctx, input.CounterpartyID); err != nil {
		return nil, err
	}
	if input.Status == "" {
		if input.Kind.RequiresApproval() {
			input.Status = InstrumentStatusPending
		} else {
			input.Status = InstrumentStatusApproved
		}
	}
	return s.store.CreateInstrument(ctx, input)
}

// ApproveInstrument completes the raise-then-approve phase for notes.
func (s *Service) ApproveInstrument(ctx context.Context, id int64) error {
	return s.store.ApproveInstrument(ctx, id)
}

// InstrumentWithAllocations pairs an instrument with its allocation history.
type InstrumentWithAllocations struct {
	Instrument  Instrument   `json:"instrument"`
	Allocations []Allocation `json:"allocations"`
}

// GetInstrumentWithAllocations returns an instrument and its append-only
// allocation trail.
func (s *Service) GetInstrumentWithAllocations(ctx context.Context, id int64) (*InstrumentWithAllocations, error) {
	ins, err := s.store.GetInstrument(ctx, id)
	if err != nil {
		return nil, err
	}
	allocations, err := s.store.ListAllocations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InstrumentWithAllocations{Instrument: *ins, Allocations: allocations}, nil
}

// GetInvoiceByNumber resolves an invoice by document number.
func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.store.GetInvoiceByNumber(ctx, number)
}

// ListInvoices returns invoices matching the filter.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	return s.store.ListInvoices(ctx, filter)
}
