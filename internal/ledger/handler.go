package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/httpx"
)

// Handler exposes statement and ageing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/counterparties/{id}/statement", h.statement)
	r.Get("/counterparties/{id}/statement/csv", h.statementCSV)
	r.Get("/counterparties/{id}/ageing", h.ageing)
}

var errorTable = []httpx.Status{
	{Err: finance.ErrNotFound, Code: http.StatusNotFound, Title: "Not Found"},
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.buildStatement(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) statementCSV(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.buildStatement(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="statement.csv"`)
	if err := WriteStatementCSV(w, stmt); err != nil {
		h.logger.Error("write statement csv", slog.Any("error", err))
	}
}

func (h *Handler) buildStatement(w http.ResponseWriter, r *http.Request) (*Statement, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid counterparty id")
		return nil, false
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return nil, false
	}

	stmt, err := h.service.Statement(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("build statement", slog.Int64("counterparty_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return nil, false
	}
	return stmt, true
}

func (h *Handler) ageing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid counterparty id")
		return
	}
	direction := finance.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = finance.DirectionReceivable
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	buckets, err := h.service.Ageing(r.Context(), id, direction, asOf)
	if err != nil {
		h.logger.Error("ageing report", slog.Int64("counterparty_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"counterparty_id": id,
		"direction":       direction,
		"buckets":         buckets,
		"total":           buckets.Total(),
	})
}

func parseAsOf(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return time.Now(), nil
	}
	return time.Parse("2006-01-02", v)
}

func parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := time.Now()
	from := now.AddDate(0, -1, 0)
	to := now
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
