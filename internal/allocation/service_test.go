package allocation_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NCGHoldings/StoresONE-sub004/internal/allocation"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance/financetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllocateCreditNoteFully(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Total:          1000,
		Status:         finance.InvoiceStatusSent,
	})
	note := store.SeedInstrument(finance.Instrument{
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Kind:           finance.KindCreditNote,
		OriginalAmount: 400,
		Status:         finance.InstrumentStatusApproved,
	})

	svc := allocation.NewService(store, testLogger())
	res, err := svc.Allocate(context.Background(), allocation.AllocateInput{
		InstrumentID: note.ID,
		InvoiceID:    inv.ID,
		Amount:       400,
	})
	require.NoError(t, err)
	require.InDelta(t, 400, res.AppliedAmount, 0.0001)
	require.InDelta(t, 0, res.InstrumentRemaining, 0.0001)
	require.InDelta(t, 600, res.InvoiceBalance, 0.0001)
	require.Equal(t, finance.InstrumentStatusApplied, res.InstrumentStatus)
	require.Equal(t, finance.InvoiceStatusPartial, res.InvoiceStatus)

	got, err := store.GetInstrument(context.Background(), note.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AppliedToInvoiceID)
	require.Equal(t, inv.ID, *got.AppliedToInvoiceID)
}

func TestAllocateClampsToInvoiceBalance(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Total:          1000,
		AmountPaid:     400,
		Status:         finance.InvoiceStatusPartial,
	})
	advance := store.SeedInstrument(finance.Instrument{
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Kind:           finance.KindAdvance,
		OriginalAmount: 1000,
		AmountApplied:  300,
		Status:         finance.InstrumentStatusPartial,
	})

	svc := allocation.NewService(store, testLogger())
	res, err := svc.Allocate(context.Background(), allocation.AllocateInput{
		InstrumentID: advance.ID,
		InvoiceID:    inv.ID,
		Amount:       700,
	})
	require.NoError(t, err)
	// Balance due was 600, so only 600 of the requested 700 applies.
	require.InDelta(t, 600, res.AppliedAmount, 0.0001)
	require.InDelta(t, 100, res.InstrumentRemaining, 0.0001)
	require.InDelta(t, 0, res.InvoiceBalance, 0.0001)
	require.Equal(t, finance.InvoiceStatusPaid, res.InvoiceStatus)
	require.Equal(t, finance.InstrumentStatusPartial, res.InstrumentStatus)

	// Not fully consumed in one call, so the convenience pointer stays unset.
	got, err := store.GetInstrument(context.Background(), advance.ID)
	require.NoError(t, err)
	require.Nil(t, got.AppliedToInvoiceID)
}

func TestAllocateRequiresApproval(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		Total:  1000,
		Status: finance.InvoiceStatusSent,
	})
	note := store.SeedInstrument(finance.Instrument{
		Kind:           finance.KindCreditNote,
		OriginalAmount: 200,
		Status:         finance.InstrumentStatusPending,
	})

	svc := allocation.NewService(store, testLogger())
	_, err := svc.Allocate(context.Background(), allocation.AllocateInput{
		InstrumentID: note.ID,
		InvoiceID:    inv.ID,
		Amount:       200,
	})
	require.ErrorIs(t, err, finance.ErrNotApproved)
	require.Empty(t, store.Allocations())

	// The trusted ingestion channel may waive approval.
	res, err := svc.Allocate(context.Background(), allocation.AllocateInput{
		InstrumentID:    note.ID,
		InvoiceID:       inv.ID,
		Amount:          200,
		AllowUnapproved: true,
	})
	require.NoError(t, err)
	require.InDelta(t, 200, res.AppliedAmount, 0.0001)
}

func TestAllocatePreconditionFailures(t *testing.T) {
	store := financetest.NewStore()
	paid := store.SeedInvoice(finance.Invoice{
		Total:      500,
		AmountPaid: 500,
		Status:     finance.InvoiceStatusPaid,
	})
	cancelled := store.SeedInvoice(finance.Invoice{
		Total:  500,
		Status: finance.InvoiceStatusCancelled,
	})
	open := store.SeedInvoice(finance.Invoice{
		Total:  500,
		Status: finance.InvoiceStatusSent,
	})
	exhausted := store.SeedInstrument(finance.Instrument{
		Kind:           finance.KindReceipt,
		OriginalAmount: 300,
		AmountApplied:  300,
		Status:         finance.InstrumentStatusApplied,
	})
	fresh := store.SeedInstrument(finance.Instrument{
		Kind:           finance.KindReceipt,
		OriginalAmount: 300,
		Status:         finance.InstrumentStatusApproved,
	})
	reversed := store.SeedInstrument(finance.Instrument{
		Kind:           finance.KindReceipt,
		OriginalAmount: 300,
		Status:         finance.InstrumentStatusReversed,
	})

	svc := allocation.NewService(store, testLogger())
	ctx := context.Background()

	_, err := svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: fresh.ID, InvoiceID: paid.ID, Amount: 100})
	require.ErrorIs(t, err, finance.ErrInvoiceAlreadySettled)

	_, err = svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: fresh.ID, InvoiceID: cancelled.ID, Amount: 100})
	require.ErrorIs(t, err, finance.ErrInvalidStatus)

	_, err = svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: exhausted.ID, InvoiceID: open.ID, Amount: 100})
	require.ErrorIs(t, err, finance.ErrInsufficientInstrumentBalance)

	_, err = svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: reversed.ID, InvoiceID: open.ID, Amount: 100})
	require.ErrorIs(t, err, finance.ErrInvalidStatus)

	_, err = svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: fresh.ID, InvoiceID: open.ID, Amount: -5})
	require.ErrorIs(t, err, finance.ErrInvalidStatus)

	_, err = svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: 999, InvoiceID: open.ID, Amount: 100})
	require.ErrorIs(t, err, finance.ErrNotFound)

	require.Empty(t, store.Allocations())
}

func TestAllocateRejectsForeignCounterparty(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Total:          1000,
		Status:         finance.InvoiceStatusSent,
	})
	foreignNote := store.SeedInstrument(finance.Instrument{
		CounterpartyID: 2,
		Direction:      finance.DirectionReceivable,
		Kind:           finance.KindCreditNote,
		OriginalAmount: 400,
		Status:         finance.InstrumentStatusApproved,
	})
	payableReceipt := store.SeedInstrument(finance.Instrument{
		CounterpartyID: 1,
		Direction:      finance.DirectionPayable,
		Kind:           finance.KindReceipt,
		OriginalAmount: 400,
		Status:         finance.InstrumentStatusApproved,
	})

	svc := allocation.NewService(store, testLogger())
	ctx := context.Background()

	_, err := svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: foreignNote.ID, InvoiceID: inv.ID, Amount: 400})
	require.ErrorIs(t, err, finance.ErrCounterpartyMismatch)

	_, err = svc.Allocate(ctx, allocation.AllocateInput{InstrumentID: payableReceipt.ID, InvoiceID: inv.ID, Amount: 400})
	require.ErrorIs(t, err, finance.ErrCounterpartyMismatch)

	require.Empty(t, store.Allocations())
	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.InDelta(t, 0, got.AmountPaid, 0.0001)
}

func TestConcurrentAllocationsNeverOverApply(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		Total:  1000,
		Status: finance.InvoiceStatusSent,
	})
	receipt := store.SeedInstrument(finance.Instrument{
		Kind:           finance.KindReceipt,
		OriginalAmount: 800,
		Status:         finance.InstrumentStatusApproved,
	})

	svc := allocation.NewService(store, testLogger())

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = svc.Allocate(context.Background(), allocation.AllocateInput{
				InstrumentID: receipt.ID,
				InvoiceID:    inv.ID,
				Amount:       100,
			})
		}()
	}
	wg.Wait()

	gotIns, err := store.GetInstrument(context.Background(), receipt.ID)
	require.NoError(t, err)
	gotInv, err := store.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	var allocated float64
	for _, a := range store.Allocations() {
		allocated += a.Amount
	}

	// Whatever interleaving happened, the counters match the rows and
	// nothing exceeds the instrument's face amount.
	require.InDelta(t, allocated, gotIns.AmountApplied, 0.0001)
	require.InDelta(t, allocated, gotInv.AmountPaid, 0.0001)
	require.LessOrEqual(t, gotIns.AmountApplied, gotIns.OriginalAmount+0.0001)
	require.LessOrEqual(t, gotInv.AmountPaid, gotInv.Total+0.0001)
	require.InDelta(t, 800, gotIns.AmountApplied, 0.0001)
	require.Equal(t, finance.InstrumentStatusApplied, gotIns.Status)
}

func TestConcurrentInstrumentsAgainstOneInvoice(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		Total:  500,
		Status: finance.InvoiceStatusSent,
	})

	var instruments []finance.Instrument
	for i := 0; i < 8; i++ {
		instruments = append(instruments, store.SeedInstrument(finance.Instrument{
			Kind:           finance.KindReceipt,
			OriginalAmount: 100,
			Status:         finance.InstrumentStatusApproved,
		}))
	}

	svc := allocation.NewService(store, testLogger())

	var wg sync.WaitGroup
	wg.Add(len(instruments))
	for _, ins := range instruments {
		go func(id int64) {
			defer wg.Done()
			_, _ = svc.Allocate(context.Background(), allocation.AllocateInput{
				InstrumentID: id,
				InvoiceID:    inv.ID,
				Amount:       100,
			})
		}(ins.ID)
	}
	wg.Wait()

	gotInv, err := store.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	// 800 was offered against a 500 invoice; payments clamp at the total.
	require.InDelta(t, 500, gotInv.AmountPaid, 0.0001)
	require.Equal(t, finance.InvoiceStatusPaid, gotInv.Status)

	var allocated float64
	for _, a := range store.Allocations() {
		allocated += a.Amount
	}
	require.InDelta(t, 500, allocated, 0.0001)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, action, entity, entityID string, meta map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func TestReverseAllocation(t *testing.T) {
	store := financetest.NewStore()
	inv := store.SeedInvoice(finance.Invoice{
		Total:  1000,
		Status: finance.InvoiceStatusSent,
	})
	note := store.SeedInstrument(finance.Instrument{
		Kind:           finance.KindCreditNote,
		OriginalAmount: 400,
		Status:         finance.InstrumentStatusApproved,
	})

	svc := allocation.NewService(store, testLogger())
	ctx := context.Background()

	applied, err := svc.Allocate(ctx, allocation.AllocateInput{
		InstrumentID: note.ID,
		InvoiceID:    inv.ID,
		Amount:       400,
	})
	require.NoError(t, err)

	audit := &recordingAudit{}
	reversed, err := svc.Reverse(ctx, allocation.ReverseInput{
		AllocationID: applied.AllocationID,
		Reason:       "posted to wrong invoice",
	}, audit)
	require.NoError(t, err)
	require.InDelta(t, -400, reversed.AppliedAmount, 0.0001)
	require.Equal(t, finance.InstrumentStatusApproved, reversed.InstrumentStatus)
	require.Equal(t, finance.InvoiceStatusSent, reversed.InvoiceStatus)
	require.Equal(t, []string{"allocation.reverse"}, audit.actions)

	rows := store.Allocations()
	require.Len(t, rows, 2)
	require.InDelta(t, -400, rows[1].Amount, 0.0001)
	require.NotNil(t, rows[1].ReversesID)
	require.Equal(t, applied.AllocationID, *rows[1].ReversesID)

	gotIns, err := store.GetInstrument(ctx, note.ID)
	require.NoError(t, err)
	require.InDelta(t, 0, gotIns.AmountApplied, 0.0001)
	gotInv, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.InDelta(t, 0, gotInv.AmountPaid, 0.0001)

	// Reversing the counter-allocation is rejected.
	_, err = svc.Reverse(ctx, allocation.ReverseInput{AllocationID: reversed.AllocationID}, nil)
	require.ErrorIs(t, err, finance.ErrInvalidStatus)

	// Reversing the same allocation twice would drive counters negative.
	_, err = svc.Reverse(ctx, allocation.ReverseInput{AllocationID: applied.AllocationID}, nil)
	require.ErrorIs(t, err, finance.ErrInvalidStatus)
}

// conflictingStore fakes serialization conflicts for the first n attempts.
type conflictingStore struct {
	*financetest.Store
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (c *conflictingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx finance.TxStore) error) error {
	c.mu.Lock()
	c.attempts++
	fail := c.attempts <= c.conflicts
	c.mu.Unlock()
	if fail {
		return finance.ErrSerialization
	}
	return c.Store.WithTx(ctx, fn)
}

func TestAllocateRetriesSerializationConflicts(t *testing.T) {
	base := financetest.NewStore()
	inv := base.SeedInvoice(finance.Invoice{
		Total:  1000,
		Status: finance.InvoiceStatusSent,
	})
	receipt := base.SeedInstrument(finance.Instrument{
		Kind:           finance.KindReceipt,
		OriginalAmount: 300,
		Status:         finance.InstrumentStatusApproved,
	})

	store := &conflictingStore{Store: base, conflicts: 2}
	svc := allocation.NewService(store, testLogger())

	res, err := svc.Allocate(context.Background(), allocation.AllocateInput{
		InstrumentID: receipt.ID,
		InvoiceID:    inv.ID,
		Amount:       300,
	})
	require.NoError(t, err)
	require.InDelta(t, 300, res.AppliedAmount, 0.0001)
	// Exactly one allocation row exists despite the retries.
	require.Len(t, base.Allocations(), 1)
}

func TestAllocateGivesUpAfterMaxRetries(t *testing.T) {
	base := financetest.NewStore()
	inv := base.SeedInvoice(finance.Invoice{Total: 1000, Status: finance.InvoiceStatusSent})
	receipt := base.SeedInstrument(finance.Instrument{
		Kind:           finance.KindReceipt,
		OriginalAmount: 300,
		Status:         finance.InstrumentStatusApproved,
	})

	store := &conflictingStore{Store: base, conflicts: 100}
	svc := allocation.NewService(store, testLogger())

	_, err := svc.Allocate(context.Background(), allocation.AllocateInput{
		InstrumentID: receipt.ID,
		InvoiceID:    inv.ID,
		Amount:       300,
	})
	require.ErrorIs(t, err, finance.ErrSerialization)
	require.Empty(t, base.Allocations())
}
