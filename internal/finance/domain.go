package finance

import (
	"time"
)

// Direction distinguishes customer-facing (receivable) from vendor-facing
// (payable) documents. Both sides share the same shapes and status machine.
type Direction string

const (
	DirectionReceivable Direction = "RECEIVABLE"
	DirectionPayable    Direction = "PAYABLE"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	InvoiceStatusDraft      InvoiceStatus = "DRAFT"
	InvoiceStatusSent       InvoiceStatus = "SENT"
	InvoiceStatusPartial    InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid       InvoiceStatus = "PAID"
	InvoiceStatusOverdue    InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled  InvoiceStatus = "CANCELLED"
	InvoiceStatusWrittenOff InvoiceStatus = "WRITTEN_OFF"
)

// InstrumentKind enumerates adjustment instrument types.
type InstrumentKind string

const (
	KindCreditNote InstrumentKind = "CREDIT_NOTE"
	KindDebitNote  InstrumentKind = "DEBIT_NOTE"
	KindAdvance    InstrumentKind = "ADVANCE"
	KindReceipt    InstrumentKind = "RECEIPT"
	KindPayment    InstrumentKind = "PAYMENT"
)

// InstrumentStatus enumerates adjustment instrument lifecycle values.
type InstrumentStatus string

const (
	InstrumentStatusPending   InstrumentStatus = "PENDING"
	InstrumentStatusApproved  InstrumentStatus = "APPROVED"
	InstrumentStatusPartial   InstrumentStatus = "PARTIAL"
	InstrumentStatusApplied   InstrumentStatus = "APPLIED"
	InstrumentStatusReversed  InstrumentStatus = "REVERSED"
	InstrumentStatusCancelled InstrumentStatus = "CANCELLED"
)

// Invoice model. Total is immutable once issued; AmountPaid moves forward
// only through the allocation engine.
type Invoice struct {
	ID             int64
	Number         string
	CounterpartyID int64
	Direction      Direction
	OrderRef       string
	Currency       string
	Subtotal       float64
	TaxAmount      float64
	Total          float64
	AmountPaid     float64
	Status         InvoiceStatus
	IssuedAt       time.Time
	DueAt          time.Time
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BalanceDue returns the unsettled portion of the invoice.
func (i Invoice) BalanceDue() float64 {
	return i.Total - i.AmountPaid
}

// Open reports whether the invoice can still receive allocations.
func (i Invoice) Open() bool {
	switch i.Status {
	case InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusWrittenOff:
		return false
	}
	return true
}

// PastDue reports whether the invoice is overdue as of the given instant.
func (i Invoice) PastDue(asOf time.Time) bool {
	return asOf.After(i.DueAt) && i.BalanceDue() > 0
}

// Instrument model. An adjustment instrument (credit note, debit note,
// advance, receipt or payment) settles invoices through allocations.
type Instrument struct {
	ID             int64
	Number         string
	Kind           InstrumentKind
	CounterpartyID int64
	Direction      Direction
	// LinkedInvoiceID references the invoice the instrument was raised
	// against, which is not necessarily the invoice it is applied to.
	LinkedInvoiceID *int64
	OriginalAmount  float64
	AmountApplied   float64
	Status          InstrumentStatus
	Reason          string
	// ExternalRef carries the external channel's transaction id; unique
	// when set, used as the idempotency key.
	ExternalRef string
	// AppliedToInvoiceID is a legacy convenience pointer, set only when a
	// single call fully consumes the instrument. The allocation table is
	// the source of truth; a multi-invoice split leaves this at the last
	// invoice touched.
	AppliedToInvoiceID *int64
	IssuedAt           time.Time
	CreatedBy          int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Remaining returns the unapplied portion of the instrument.
func (n Instrument) Remaining() float64 {
	return n.OriginalAmount - n.AmountApplied
}

// Allocatable reports whether the instrument can still fund allocations.
func (n Instrument) Allocatable() bool {
	switch n.Status {
	case InstrumentStatusReversed, InstrumentStatusCancelled:
		return false
	}
	return true
}

// Settlement reports whether the instrument kind settles cash (receipt or
// payment) as opposed to adjusting the ledger (credit/debit note, advance).
func (k InstrumentKind) Settlement() bool {
	return k == KindReceipt || k == KindPayment
}

// RequiresApproval reports whether the kind must pass through the two-phase
// raise-then-approve flow before it may be allocated.
func (k InstrumentKind) RequiresApproval() bool {
	return k == KindCreditNote || k == KindDebitNote
}

// Allocation is the append-only join record applying part of an instrument
// to an invoice. Negative amounts are reversals referencing the original row.
type Allocation struct {
	ID           int64
	InstrumentID int64
	InvoiceID    int64
	Amount       float64
	ReversesID   *int64
	CreatedAt    time.Time
}

// --- Input DTOs ---

// CreateInvoiceInput for creating invoices.
type CreateInvoiceInput struct {
	CounterpartyID int64
	Direction      Direction
	Number         string
	OrderRef       string
	Currency       string
	Subtotal       float64
	TaxAmount      float64
	DueDate        time.Time
	IssuedAt       time.Time
	CreatedBy      int64
}

// CreateInstrumentInput for creating adjustment instruments.
type CreateInstrumentInput struct {
	CounterpartyID  int64
	Direction       Direction
	Kind            InstrumentKind
	Number          string
	LinkedInvoiceID *int64
	OriginalAmount  float64
	Reason          string
	ExternalRef     string
	Status          InstrumentStatus
	IssuedAt        time.Time
	CreatedBy       int64
}

// InvoiceFilter narrows invoice range queries.
type InvoiceFilter struct {
	CounterpartyID int64
	Direction      Direction
	Status         InvoiceStatus
	IssuedBefore   time.Time
	IssuedFrom     time.Time
	IssuedTo       time.Time
	OpenOnly       bool
	Limit          int
	Offset         int
}

// InstrumentFilter narrows instrument range queries.
type InstrumentFilter struct {
	CounterpartyID int64
	Direction      Direction
	Kind           InstrumentKind
	IssuedBefore   time.Time
	IssuedFrom     time.Time
	IssuedTo       time.Time
	Limit          int
	Offset         int
}

// Counterparty is the minimal customer/supplier projection the finance core
// needs; the master data module owns the full record.
type Counterparty struct {
	ID   int64
	Code string
	Name string
}
