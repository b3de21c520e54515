package ledger_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance/financetest"
	"github.com/NCGHoldings/StoresONE-sub004/internal/ledger"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStatementReconciles(t *testing.T) {
	store := financetest.NewStore()
	from := date(2025, 3, 1)
	to := date(2025, 3, 31)

	// Before the period: one invoice and one receipt set the opening balance.
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0001",
		CounterpartyID: 7,
		Direction:      finance.DirectionReceivable,
		Total:          2000,
		AmountPaid:     500,
		Status:         finance.InvoiceStatusPartial,
		IssuedAt:       date(2025, 1, 15),
	})
	store.SeedInstrument(finance.Instrument{
		Number:         "RCT-2025-0001",
		CounterpartyID: 7,
		Kind:           finance.KindReceipt,
		OriginalAmount: 500,
		AmountApplied:  500,
		Status:         finance.InstrumentStatusApplied,
		IssuedAt:       date(2025, 1, 20),
	})

	// Inside the period.
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0002",
		CounterpartyID: 7,
		Direction:      finance.DirectionReceivable,
		Total:          1180,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       date(2025, 3, 5),
	})
	store.SeedInstrument(finance.Instrument{
		Number:         "CN-2025-0001",
		CounterpartyID: 7,
		Kind:           finance.KindCreditNote,
		OriginalAmount: 180,
		Status:         finance.InstrumentStatusApproved,
		IssuedAt:       date(2025, 3, 10),
	})

	// Outside the period, must not appear.
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0003",
		CounterpartyID: 7,
		Direction:      finance.DirectionReceivable,
		Total:          999,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       date(2025, 4, 2),
	})
	// Other counterparty, must not appear.
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0004",
		CounterpartyID: 8,
		Direction:      finance.DirectionReceivable,
		Total:          50,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       date(2025, 3, 7),
	})

	svc := ledger.NewService(store)
	stmt, err := svc.Statement(context.Background(), 7, from, to)
	require.NoError(t, err)

	// Opening uses face amounts, not applied snapshots: 2000 - 500.
	require.InDelta(t, 1500, stmt.OpeningBalance, 0.0001)
	require.InDelta(t, 1180, stmt.TotalDebits, 0.0001)
	require.InDelta(t, 180, stmt.TotalCredits, 0.0001)
	require.InDelta(t, stmt.OpeningBalance+stmt.TotalDebits-stmt.TotalCredits, stmt.ClosingBalance, 0.0001)
	require.Empty(t, stmt.Discrepancies)

	require.Len(t, stmt.Transactions, 2)
	require.Equal(t, "INV-2025-0002", stmt.Transactions[0].Reference)
	require.Equal(t, ledger.EntryDebit, stmt.Transactions[0].Type)
	require.Equal(t, "Sales Invoice", stmt.Transactions[0].Description)
	require.Equal(t, "CN-2025-0001", stmt.Transactions[1].Reference)
	require.Equal(t, ledger.EntryCredit, stmt.Transactions[1].Type)
	require.Equal(t, "Credit Note", stmt.Transactions[1].Description)

	// Running balances walk from opening to closing.
	require.InDelta(t, 2680, stmt.Transactions[0].Balance, 0.0001)
	require.InDelta(t, 2500, stmt.Transactions[1].Balance, 0.0001)
	require.InDelta(t, stmt.ClosingBalance, stmt.Transactions[1].Balance, 0.0001)
}

func TestStatementEqualDatesDebitsFirst(t *testing.T) {
	store := financetest.NewStore()
	day := date(2025, 6, 10)

	store.SeedInstrument(finance.Instrument{
		Number:         "RCT-2025-0009",
		CounterpartyID: 1,
		Kind:           finance.KindReceipt,
		OriginalAmount: 300,
		Status:         finance.InstrumentStatusApproved,
		IssuedAt:       day,
	})
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0009",
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Total:          300,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       day,
	})

	svc := ledger.NewService(store)
	stmt, err := svc.Statement(context.Background(), 1, date(2025, 6, 1), date(2025, 6, 30))
	require.NoError(t, err)

	require.Len(t, stmt.Transactions, 2)
	// Same day: the invoice debit sorts ahead of the receipt credit even
	// though the receipt was stored first.
	require.Equal(t, ledger.EntryDebit, stmt.Transactions[0].Type)
	require.Equal(t, ledger.EntryCredit, stmt.Transactions[1].Type)
}

func TestStatementCancelledInvoicesExcluded(t *testing.T) {
	store := financetest.NewStore()
	store.SeedInvoice(finance.Invoice{
		CounterpartyID: 1,
		Total:          100,
		Status:         finance.InvoiceStatusCancelled,
		IssuedAt:       date(2025, 2, 1),
	})
	store.SeedInvoice(finance.Invoice{
		CounterpartyID: 1,
		Total:          400,
		Status:         finance.InvoiceStatusCancelled,
		IssuedAt:       date(2025, 3, 5),
	})

	svc := ledger.NewService(store)
	stmt, err := svc.Statement(context.Background(), 1, date(2025, 3, 1), date(2025, 3, 31))
	require.NoError(t, err)
	require.Zero(t, stmt.OpeningBalance)
	require.Empty(t, stmt.Transactions)
	require.Zero(t, stmt.ClosingBalance)
}

func TestStatementRejectsInvertedPeriod(t *testing.T) {
	svc := ledger.NewService(financetest.NewStore())
	_, err := svc.Statement(context.Background(), 1, date(2025, 3, 31), date(2025, 3, 1))
	require.Error(t, err)
}

func TestStatementLastDayInclusive(t *testing.T) {
	store := financetest.NewStore()
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0042",
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Total:          250,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       time.Date(2025, 3, 31, 17, 45, 0, 0, time.UTC),
	})

	svc := ledger.NewService(store)
	stmt, err := svc.Statement(context.Background(), 1, date(2025, 3, 1), date(2025, 3, 31))
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 1)
}

func TestAgeingBuckets(t *testing.T) {
	store := financetest.NewStore()
	asOf := date(2025, 6, 1)

	seed := func(total, paid float64, dueDaysAgo int, status finance.InvoiceStatus) {
		store.SeedInvoice(finance.Invoice{
			CounterpartyID: 3,
			Direction:      finance.DirectionReceivable,
			Total:          total,
			AmountPaid:     paid,
			Status:         status,
			IssuedAt:       asOf.AddDate(0, -3, 0),
			DueAt:          asOf.AddDate(0, 0, -dueDaysAgo),
		})
	}

	seed(100, 0, -10, finance.InvoiceStatusSent)    // not yet due -> current
	seed(200, 50, 15, finance.InvoiceStatusPartial) // 15 days late -> bucket 30
	seed(300, 0, 30, finance.InvoiceStatusOverdue)  // boundary stays in bucket 30
	seed(400, 0, 45, finance.InvoiceStatusOverdue)  // bucket 60
	seed(500, 0, 75, finance.InvoiceStatusOverdue)  // bucket 90
	seed(600, 0, 120, finance.InvoiceStatusOverdue) // bucket 120
	seed(999, 999, 40, finance.InvoiceStatusPaid)   // settled, excluded

	svc := ledger.NewService(store)
	buckets, err := svc.Ageing(context.Background(), 3, finance.DirectionReceivable, asOf)
	require.NoError(t, err)

	require.InDelta(t, 100, buckets.Current, 0.0001)
	require.InDelta(t, 450, buckets.Bucket30, 0.0001)
	require.InDelta(t, 400, buckets.Bucket60, 0.0001)
	require.InDelta(t, 500, buckets.Bucket90, 0.0001)
	require.InDelta(t, 600, buckets.Bucket120, 0.0001)

	// Buckets always sum to the outstanding total.
	require.InDelta(t, 100+150+300+400+500+600, buckets.Total(), 0.0001)
}

func TestWriteStatementCSV(t *testing.T) {
	store := financetest.NewStore()
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0002",
		CounterpartyID: 7,
		Direction:      finance.DirectionReceivable,
		Total:          1234567.89,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       date(2025, 3, 5),
	})

	svc := ledger.NewService(store)
	stmt, err := svc.Statement(context.Background(), 7, date(2025, 3, 1), date(2025, 3, 31))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ledger.WriteStatementCSV(&buf, stmt))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4) // header, opening, one transaction, closing
	require.Contains(t, lines[0], "Date,Type,Reference,Description,Debit,Credit,Balance")
	require.Contains(t, lines[1], "Opening Balance")
	require.Contains(t, lines[2], "INV-2025-0002")
	// Amounts render with thousands separators.
	require.Contains(t, out, `1,234,567.89`)
	require.Contains(t, lines[3], "Closing Balance")
}
