package finance

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/httpx"
)

// Handler exposes invoice and instrument endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers finance document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{number}", h.getInvoice)
	r.Post("/invoices/{id}/issue", h.issueInvoice)
	r.Post("/invoices/{id}/cancel", h.cancelInvoice)
	r.Post("/instruments", h.createInstrument)
	r.Get("/instruments/{id}", h.getInstrument)
	r.Post("/instruments/{id}/approve", h.approveInstrument)
}

var errorTable = []httpx.Status{
	{Err: ErrNotFound, Code: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrInvalidStatus, Code: http.StatusUnprocessableEntity, Title: "Invalid Status"},
	{Err: ErrDuplicateExternalRef, Code: http.StatusConflict, Title: "Duplicate"},
	{Err: ErrNotApproved, Code: http.StatusUnprocessableEntity, Title: "Not Approved"},
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	dueDate, _ := time.Parse("2006-01-02", req.DueDate)
	issuedAt := time.Now()
	if req.IssuedAt != "" {
		issuedAt, _ = time.Parse("2006-01-02", req.IssuedAt)
	}

	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		CounterpartyID: req.CounterpartyID,
		Direction:      Direction(req.Direction),
		OrderRef:       req.OrderRef,
		Currency:       req.Currency,
		Subtotal:       req.Subtotal,
		TaxAmount:      req.TaxAmount,
		DueDate:        dueDate,
		IssuedAt:       issuedAt,
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToInvoiceDTO(*inv, time.Now()))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := InvoiceFilter{
		Direction: Direction(q.Get("direction")),
		Status:    InvoiceStatus(q.Get("status")),
		OpenOnly:  q.Get("open") == "true",
		Limit:     100,
	}
	if v := q.Get("counterparty_id"); v != "" {
		filter.CounterpartyID, _ = strconv.ParseInt(v, 10, 64)
	}

	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	now := time.Now()
	out := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, ToInvoiceDTO(inv, now))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	inv, err := h.service.GetInvoiceByNumber(r.Context(), number)
	if err != nil {
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusOK, ToInvoiceDTO(*inv, time.Now()))
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid invoice id")
		return
	}
	if err := h.service.IssueInvoice(r.Context(), id); err != nil {
		h.logger.Error("issue invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(InvoiceStatusSent)})
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid invoice id")
		return
	}
	if err := h.service.CancelInvoice(r.Context(), id); err != nil {
		h.logger.Error("cancel invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(InvoiceStatusCancelled)})
}

func (h *Handler) createInstrument(w http.ResponseWriter, r *http.Request) {
	var req CreateInstrumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	issuedAt := time.Now()
	if req.IssuedAt != "" {
		issuedAt, _ = time.Parse("2006-01-02", req.IssuedAt)
	}

	ins, err := h.service.CreateInstrument(r.Context(), CreateInstrumentInput{
		CounterpartyID:  req.CounterpartyID,
		Direction:       Direction(req.Direction),
		Kind:            InstrumentKind(req.Kind),
		LinkedInvoiceID: req.LinkedInvoiceID,
		OriginalAmount:  req.Amount,
		Reason:          req.Reason,
		IssuedAt:        issuedAt,
	})
	if err != nil {
		h.logger.Error("create instrument", slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToInstrumentDTO(*ins))
}

func (h *Handler) getInstrument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid instrument id")
		return
	}
	detail, err := h.service.GetInstrumentWithAllocations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, errorTable)
		return
	}
	allocations := make([]AllocationDTO, 0, len(detail.Allocations))
	for _, a := range detail.Allocations {
		allocations = append(allocations, ToAllocationDTO(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"instrument":  ToInstrumentDTO(detail.Instrument),
		"allocations": allocations,
	})
}

func (h *Handler) approveInstrument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid instrument id")
		return
	}
	if err := h.service.ApproveInstrument(r.Context(), id); err != nil {
		h.logger.Error("approve instrument", slog.Int64("instrument_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(InstrumentStatusApproved)})
}
