package exposure

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/httpx"
)

// Handler exposes the counterparty exposure endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers exposure routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/counterparties/{id}/exposure", h.exposure)
}

var errorTable = []httpx.Status{
	{Err: finance.ErrNotFound, Code: http.StatusNotFound, Title: "Not Found"},
}

func (h *Handler) exposure(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid counterparty id")
		return
	}
	direction := finance.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = finance.DirectionReceivable
	}
	asOf := time.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
			return
		}
		asOf = parsed
	}

	summary, err := h.service.Summarize(r.Context(), id, direction, asOf)
	if err != nil {
		h.logger.Error("exposure summary", slog.Int64("counterparty_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
