package ledger

import (
	"context"
	"time"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
)

// Ageing buckets the counterparty's outstanding balances by days overdue as
// of asOf. Paid, cancelled and written-off invoices are excluded; the same
// boundaries apply to both the receivable and payable directions.
func (s *Service) Ageing(ctx context.Context, counterpartyID int64, direction finance.Direction, asOf time.Time) (AgeingBuckets, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	invoices, err := s.store.ListInvoices(ctx, finance.InvoiceFilter{
		CounterpartyID: counterpartyID,
		Direction:      direction,
		OpenOnly:       true,
	})
	if err != nil {
		return AgeingBuckets{}, err
	}

	var buckets AgeingBuckets
	for _, inv := range invoices {
		balance := inv.BalanceDue()
		if balance <= 0 {
			continue
		}
		days := int(asOf.Sub(inv.DueAt).Hours() / 24)
		switch {
		case days <= 0:
			buckets.Current += balance
		case days <= 30:
			buckets.Bucket30 += balance
		case days <= 60:
			buckets.Bucket60 += balance
		case days <= 90:
			buckets.Bucket90 += balance
		default:
			buckets.Bucket120 += balance
		}
	}
	return buckets, nil
}
