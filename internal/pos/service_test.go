package pos_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/NCGHoldings/StoresONE-sub004/internal/allocation"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance/financetest"
	"github.com/NCGHoldings/StoresONE-sub004/internal/journal"
	"github.com/NCGHoldings/StoresONE-sub004/internal/pos"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journal.PostInput
}

func (m *memoryJournal) Post(ctx context.Context, input journal.PostInput) (*journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, input)
	return &journal.Entry{ID: int64(len(m.entries)), Date: input.Date}, nil
}

type posFixture struct {
	store    *financetest.Store
	journals *memoryJournal
	svc      *pos.Service
}

func newPosFixture(t *testing.T, limiter *pos.RateLimiter) *posFixture {
	t.Helper()
	store := financetest.NewStore()
	store.AddCounterparty(finance.Counterparty{ID: 1, Code: "CUST-001", Name: "Acme Retail"})
	journals := &memoryJournal{}
	allocator := allocation.NewService(store, testLogger())
	svc := pos.NewService(store, allocator, journals, limiter, testLogger())
	return &posFixture{store: store, journals: journals, svc: svc}
}

func validRequest() pos.AdjustmentRequest {
	return pos.AdjustmentRequest{
		TerminalID:            "TERM-01",
		ExternalTransactionID: "TXN-1001",
		CounterpartyCode:      "CUST-001",
		Amount:                150,
		Reason:                "returned merchandise",
	}
}

func requireChannelCode(t *testing.T, err error, code string) {
	t.Helper()
	var chErr *pos.ChannelError
	require.ErrorAs(t, err, &chErr)
	require.Equal(t, code, chErr.Code)
}

func TestIngestCreatesApprovedCreditNote(t *testing.T) {
	f := newPosFixture(t, nil)

	result, err := f.svc.Ingest(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, result.InstrumentNumber)
	require.Equal(t, string(finance.InstrumentStatusApproved), result.Status)
	require.Zero(t, result.AmountApplied)

	ins, err := f.store.GetInstrumentByExternalRef(context.Background(), "TXN-1001")
	require.NoError(t, err)
	require.Equal(t, finance.KindCreditNote, ins.Kind)
	require.Equal(t, finance.DirectionReceivable, ins.Direction)
	require.InDelta(t, 150, ins.OriginalAmount, 0.0001)
}

func TestIngestValidatesPayload(t *testing.T) {
	f := newPosFixture(t, nil)

	req := validRequest()
	req.Amount = 0
	_, err := f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeInvalidPayload)

	req = validRequest()
	req.Amount = 2_000_000_000
	_, err = f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeInvalidPayload)

	req = validRequest()
	req.TerminalID = ""
	_, err = f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeInvalidPayload)

	require.Zero(t, f.store.InstrumentCount())
}

func TestIngestUnknownCounterparty(t *testing.T) {
	f := newPosFixture(t, nil)

	req := validRequest()
	req.CounterpartyCode = "CUST-404"
	_, err := f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeCounterpartyMissing)
}

func TestIngestInvoiceMismatch(t *testing.T) {
	f := newPosFixture(t, nil)
	f.store.AddCounterparty(finance.Counterparty{ID: 2, Code: "CUST-002"})
	f.store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0001",
		CounterpartyID: 2,
		Direction:      finance.DirectionReceivable,
		Total:          500,
		Status:         finance.InvoiceStatusSent,
	})

	req := validRequest()
	req.LinkedInvoiceNumber = "INV-2025-0001"
	_, err := f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeInvoiceMismatch)

	req.LinkedInvoiceNumber = "INV-2025-9999"
	_, err = f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeInvoiceMissing)
}

func TestIngestDuplicateReturnsOriginalOutcome(t *testing.T) {
	f := newPosFixture(t, nil)

	first, err := f.svc.Ingest(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, 1, f.store.InstrumentCount())

	second, err := f.svc.Ingest(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, first.InstrumentNumber, second.InstrumentNumber)
	require.Equal(t, first.Status, second.Status)
	// No second instrument and no new allocations.
	require.Equal(t, 1, f.store.InstrumentCount())
	require.Empty(t, f.store.Allocations())
}

func TestIngestAppliesImmediatelyAndPostsJournal(t *testing.T) {
	f := newPosFixture(t, nil)
	inv := f.store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0001",
		CounterpartyID: 1,
		Direction:      finance.DirectionReceivable,
		Total:          1000,
		Status:         finance.InvoiceStatusSent,
	})

	req := validRequest()
	req.LinkedInvoiceNumber = inv.Number
	req.ApplyImmediately = true

	result, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	require.InDelta(t, 150, result.AmountApplied, 0.0001)
	require.InDelta(t, 850, result.InvoiceBalance, 0.0001)
	require.Equal(t, string(finance.InstrumentStatusApplied), result.Status)

	gotInv, err := f.store.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.InDelta(t, 150, gotInv.AmountPaid, 0.0001)
	require.Len(t, f.store.Allocations(), 1)

	require.Len(t, f.journals.entries, 1)
	entry := f.journals.entries[0]
	require.Equal(t, "pos", entry.SourceModule)
	require.Len(t, entry.Lines, 2)
	var debits, credits float64
	for _, line := range entry.Lines {
		debits += line.Debit
		credits += line.Credit
	}
	require.InDelta(t, debits, credits, 0.0001)

	// Replay of the same transaction reports the applied state.
	replay, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	require.InDelta(t, 150, replay.AmountApplied, 0.0001)
	require.InDelta(t, 850, replay.InvoiceBalance, 0.0001)
	require.Len(t, f.store.Allocations(), 1)
	require.Len(t, f.journals.entries, 1)
}

func TestIngestConcurrentDuplicatesCreateOneInstrument(t *testing.T) {
	f := newPosFixture(t, nil)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Ingest(context.Background(), validRequest())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, f.store.InstrumentCount())
}

func TestIngestRateLimitPerTerminal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := pos.NewRateLimiter(client, 2)
	f := newPosFixture(t, limiter)

	for i := 0; i < 2; i++ {
		req := validRequest()
		req.ExternalTransactionID = req.ExternalTransactionID + "-" + string(rune('a'+i))
		_, err := f.svc.Ingest(context.Background(), req)
		require.NoError(t, err)
	}

	req := validRequest()
	req.ExternalTransactionID = "TXN-over-limit"
	_, err := f.svc.Ingest(context.Background(), req)
	requireChannelCode(t, err, pos.CodeRateLimitExceeded)

	// A different terminal is unaffected.
	req = validRequest()
	req.TerminalID = "TERM-02"
	req.ExternalTransactionID = "TXN-other-terminal"
	_, err = f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	// The window slides: after a minute the terminal may submit again.
	mr.FastForward(61 * time.Second)
	req = validRequest()
	req.ExternalTransactionID = "TXN-after-window"
	_, err = f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
}

func TestRateLimiterCountsBurstSubmissions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := pos.NewRateLimiter(client, 3)

	// Back-to-back calls may share a clock reading; each must still leave
	// its own window entry.
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "TERM-01")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, err := limiter.Allow(context.Background(), "TERM-01")
	require.NoError(t, err)
	require.False(t, allowed)

	members, err := mr.ZMembers("pos:ratelimit:TERM-01")
	require.NoError(t, err)
	require.Len(t, members, 4)
}

func TestRateLimiterFailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := pos.NewRateLimiter(client, 1)
	mr.Close()

	allowed, err := limiter.Allow(context.Background(), "TERM-01")
	require.Error(t, err)
	require.True(t, allowed)
}

func TestIngestReplayShortCircuitsResolution(t *testing.T) {
	f := newPosFixture(t, nil)
	f.store.SeedInstrument(finance.Instrument{
		Number:         "CN-2025-0007",
		ExternalRef:    "TXN-1001",
		CounterpartyID: 1,
		Kind:           finance.KindCreditNote,
		OriginalAmount: 150,
		Status:         finance.InstrumentStatusApproved,
	})

	// Even with a bad counterparty code the stored transaction id wins: the
	// idempotency lookup runs before any resolution.
	req := validRequest()
	req.CounterpartyCode = "CUST-404"
	result, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "CN-2025-0007", result.InstrumentNumber)
}
