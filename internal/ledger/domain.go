package ledger

import (
	"time"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
)

// EntryType tags a statement line as debit or credit.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Transaction is a normalized projection of one invoice or instrument into a
// statement line. It is derived fresh on every read and never persisted.
type Transaction struct {
	Date        time.Time `json:"date"`
	Type        EntryType `json:"type"`
	Reference   string    `json:"reference"`
	Description string    `json:"description"`
	Debit       float64   `json:"debit"`
	Credit      float64   `json:"credit"`
	Balance     float64   `json:"balance"`
}

// Discrepancy reports a mismatch between the walked running balance and the
// formula-based closing balance. Discrepancies are reported, never plugged.
type Discrepancy struct {
	Description string  `json:"description"`
	Difference  float64 `json:"difference"`
}

// Statement is the reconciliation report for one counterparty and period.
type Statement struct {
	CounterpartyID int64         `json:"counterparty_id"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	OpeningBalance float64       `json:"opening_balance"`
	ClosingBalance float64       `json:"closing_balance"`
	TotalDebits    float64       `json:"total_debits"`
	TotalCredits   float64       `json:"total_credits"`
	Transactions   []Transaction `json:"transactions"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
}

// AgeingBuckets summarises outstanding balances by days overdue. Bucket
// bounds are upper-inclusive: Bucket30 holds 1-30 days, Bucket60 31-60,
// Bucket90 61-90, Bucket120 everything past 90.
type AgeingBuckets struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"bucket_30"`
	Bucket60  float64 `json:"bucket_60"`
	Bucket90  float64 `json:"bucket_90"`
	Bucket120 float64 `json:"bucket_120"`
}

// Total sums all buckets.
func (b AgeingBuckets) Total() float64 {
	return b.Current + b.Bucket30 + b.Bucket60 + b.Bucket90 + b.Bucket120
}

func describe(kind finance.InstrumentKind) string {
	switch kind {
	case finance.KindCreditNote:
		return "Credit Note"
	case finance.KindDebitNote:
		return "Debit Note"
	case finance.KindAdvance:
		return "Advance Payment"
	case finance.KindReceipt:
		return "Payment Received"
	case finance.KindPayment:
		return "Payment Made"
	}
	return string(kind)
}

func describeInvoice(direction finance.Direction) string {
	if direction == finance.DirectionPayable {
		return "Purchase Invoice"
	}
	return "Sales Invoice"
}
