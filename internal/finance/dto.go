package finance

import "time"

// CreateInvoiceRequest is the JSON payload for raising an invoice.
type CreateInvoiceRequest struct {
	CounterpartyID int64   `json:"counterparty_id" validate:"required"`
	Direction      string  `json:"direction" validate:"required,oneof=RECEIVABLE PAYABLE"`
	OrderRef       string  `json:"order_ref" validate:"omitempty,max=64"`
	Currency       string  `json:"currency" validate:"omitempty,len=3"`
	Subtotal       float64 `json:"subtotal" validate:"required,gt=0"`
	TaxAmount      float64 `json:"tax_amount" validate:"gte=0"`
	DueDate        string  `json:"due_date" validate:"required,datetime=2006-01-02"`
	IssuedAt       string  `json:"issued_at" validate:"omitempty,datetime=2006-01-02"`
}

// CreateInstrumentRequest is the JSON payload for raising an instrument.
type CreateInstrumentRequest struct {
	CounterpartyID  int64   `json:"counterparty_id" validate:"required"`
	Direction       string  `json:"direction" validate:"required,oneof=RECEIVABLE PAYABLE"`
	Kind            string  `json:"kind" validate:"required,oneof=CREDIT_NOTE DEBIT_NOTE ADVANCE RECEIPT PAYMENT"`
	LinkedInvoiceID *int64  `json:"linked_invoice_id"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	Reason          string  `json:"reason" validate:"omitempty,max=255"`
	IssuedAt        string  `json:"issued_at" validate:"omitempty,datetime=2006-01-02"`
}

// InvoiceDTO is the JSON projection of an invoice.
type InvoiceDTO struct {
	ID             int64     `json:"id"`
	Number         string    `json:"number"`
	CounterpartyID int64     `json:"counterparty_id"`
	Direction      string    `json:"direction"`
	OrderRef       string    `json:"order_ref,omitempty"`
	Currency       string    `json:"currency"`
	Subtotal       float64   `json:"subtotal"`
	TaxAmount      float64   `json:"tax_amount"`
	Total          float64   `json:"total"`
	AmountPaid     float64   `json:"amount_paid"`
	BalanceDue     float64   `json:"balance_due"`
	Status         string    `json:"status"`
	IssuedAt       time.Time `json:"issued_at"`
	DueAt          time.Time `json:"due_at"`
}

// InstrumentDTO is the JSON projection of an instrument.
type InstrumentDTO struct {
	ID              int64     `json:"id"`
	Number          string    `json:"number"`
	Kind            string    `json:"kind"`
	CounterpartyID  int64     `json:"counterparty_id"`
	Direction       string    `json:"direction"`
	LinkedInvoiceID *int64    `json:"linked_invoice_id,omitempty"`
	OriginalAmount  float64   `json:"original_amount"`
	AmountApplied   float64   `json:"amount_applied"`
	Remaining       float64   `json:"remaining"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	ExternalRef     string    `json:"external_ref,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
}

// AllocationDTO is the JSON projection of one allocation row.
type AllocationDTO struct {
	ID           int64     `json:"id"`
	InstrumentID int64     `json:"instrument_id"`
	InvoiceID    int64     `json:"invoice_id"`
	Amount       float64   `json:"amount"`
	ReversesID   *int64    `json:"reverses_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToInvoiceDTO converts a domain invoice for the wire. The status shown is
// the view-time effective status so past-due open invoices read OVERDUE even
// before the nightly scan persists it.
func ToInvoiceDTO(inv Invoice, asOf time.Time) InvoiceDTO {
	return InvoiceDTO{
		ID:             inv.ID,
		Number:         inv.Number,
		CounterpartyID: inv.CounterpartyID,
		Direction:      string(inv.Direction),
		OrderRef:       inv.OrderRef,
		Currency:       inv.Currency,
		Subtotal:       inv.Subtotal,
		TaxAmount:      inv.TaxAmount,
		Total:          inv.Total,
		AmountPaid:     inv.AmountPaid,
		BalanceDue:     inv.BalanceDue(),
		Status:         string(EffectiveInvoiceStatus(inv, asOf)),
		IssuedAt:       inv.IssuedAt,
		DueAt:          inv.DueAt,
	}
}

// ToInstrumentDTO converts a domain instrument for the wire.
func ToInstrumentDTO(ins Instrument) InstrumentDTO {
	return InstrumentDTO{
		ID:              ins.ID,
		Number:          ins.Number,
		Kind:            string(ins.Kind),
		CounterpartyID:  ins.CounterpartyID,
		Direction:       string(ins.Direction),
		LinkedInvoiceID: ins.LinkedInvoiceID,
		OriginalAmount:  ins.OriginalAmount,
		AmountApplied:   ins.AmountApplied,
		Remaining:       ins.Remaining(),
		Status:          string(ins.Status),
		Reason:          ins.Reason,
		ExternalRef:     ins.ExternalRef,
		IssuedAt:        ins.IssuedAt,
	}
}

// ToAllocationDTO converts a domain allocation for the wire.
func ToAllocationDTO(a Allocation) AllocationDTO {
	return AllocationDTO{
		ID:           a.ID,
		InstrumentID: a.InstrumentID,
		InvoiceID:    a.InvoiceID,
		Amount:       a.Amount,
		ReversesID:   a.ReversesID,
		CreatedAt:    a.CreatedAt,
	}
}
