package ledger_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance/financetest"
	"github.com/NCGHoldings/StoresONE-sub004/internal/ledger"
)

func newStatementRouter(t *testing.T) *chi.Mux {
	t.Helper()
	store := financetest.NewStore()
	store.SeedInvoice(finance.Invoice{
		Number:         "INV-2025-0010",
		CounterpartyID: 3,
		Direction:      finance.DirectionReceivable,
		Total:          1180,
		Status:         finance.InvoiceStatusSent,
		IssuedAt:       date(2025, 3, 5),
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := ledger.NewHandler(logger, ledger.NewService(store))
	r := chi.NewRouter()
	r.Route("/finance", h.MountRoutes)
	return r
}

func TestStatementEndpointReturnsJSON(t *testing.T) {
	r := newStatementRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/finance/counterparties/3/statement?from=2025-03-01&to=2025-03-31", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stmt ledger.Statement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stmt))
	require.Len(t, stmt.Transactions, 1)
	require.InDelta(t, 1180, stmt.ClosingBalance, 0.0001)
}

func TestStatementCSVEndpoint(t *testing.T) {
	r := newStatementRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/finance/counterparties/3/statement/csv?from=2025-03-01&to=2025-03-31", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "statement.csv")
	require.Contains(t, rec.Body.String(), "INV-2025-0010")

	// The old extension-style path is gone.
	req = httptest.NewRequest(http.MethodGet, "/finance/counterparties/3/statement.csv", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatementEndpointRejectsBadPeriod(t *testing.T) {
	r := newStatementRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/finance/counterparties/3/statement?from=03-01-2025", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "Invalid Payload"))
}
