package finance

import "time"

// The status machines below are the single implementation for both the
// receivable and payable directions. Statuses only move forward; reversals
// go through negative allocations, never by editing a row.

// NextInvoiceStatus recomputes an invoice status after its paid counter
// moved. Terminal statuses (cancelled, written off) are never left.
func NextInvoiceStatus(current InvoiceStatus, total, amountPaid float64) InvoiceStatus {
	switch current {
	case InvoiceStatusCancelled, InvoiceStatusWrittenOff:
		return current
	}
	switch {
	case amountPaid >= total:
		return InvoiceStatusPaid
	case amountPaid > 0:
		return InvoiceStatusPartial
	case current == InvoiceStatusDraft:
		return InvoiceStatusDraft
	default:
		return InvoiceStatusSent
	}
}

// NextInstrumentStatus recomputes an instrument status after its applied
// counter moved.
func NextInstrumentStatus(current InstrumentStatus, original, amountApplied float64) InstrumentStatus {
	switch current {
	case InstrumentStatusReversed, InstrumentStatusCancelled:
		return current
	}
	switch {
	case amountApplied >= original:
		return InstrumentStatusApplied
	case amountApplied > 0:
		return InstrumentStatusPartial
	case current == InstrumentStatusPending:
		return InstrumentStatusPending
	default:
		return InstrumentStatusApproved
	}
}

// EffectiveInvoiceStatus derives the view-time status, surfacing OVERDUE for
// unsettled invoices past due. The persisted status is untouched; the
// background overdue scan may persist the same derivation later.
func EffectiveInvoiceStatus(inv Invoice, asOf time.Time) InvoiceStatus {
	if inv.PastDue(asOf) {
		switch inv.Status {
		case InvoiceStatusSent, InvoiceStatusPartial, InvoiceStatusOverdue:
			return InvoiceStatusOverdue
		}
	}
	return inv.Status
}
