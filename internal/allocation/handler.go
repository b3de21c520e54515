package allocation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/httpx"
)

// Handler exposes allocation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	audit    AuditLogger
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit AuditLogger) *Handler {
	return &Handler{logger: logger, service: service, audit: audit, validate: validator.New()}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/allocations", h.allocate)
	r.Post("/allocations/{id}/reverse", h.reverse)
}

var errorTable = []httpx.Status{
	{Err: finance.ErrNotFound, Code: http.StatusNotFound, Title: "Not Found"},
	{Err: finance.ErrInsufficientInstrumentBalance, Code: http.StatusUnprocessableEntity, Title: "Insufficient Balance"},
	{Err: finance.ErrInvoiceAlreadySettled, Code: http.StatusUnprocessableEntity, Title: "Invoice Settled"},
	{Err: finance.ErrInvalidStatus, Code: http.StatusUnprocessableEntity, Title: "Invalid Status"},
	{Err: finance.ErrNotApproved, Code: http.StatusUnprocessableEntity, Title: "Not Approved"},
	{Err: finance.ErrCounterpartyMismatch, Code: http.StatusConflict, Title: "Counterparty Mismatch"},
	{Err: finance.ErrSerialization, Code: http.StatusConflict, Title: "Concurrent Update"},
}

type allocateRequest struct {
	InstrumentID int64   `json:"instrument_id" validate:"required"`
	InvoiceID    int64   `json:"invoice_id" validate:"required"`
	Amount       float64 `json:"amount" validate:"required,gt=0"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type resultDTO struct {
	AllocationID        int64   `json:"allocation_id"`
	AppliedAmount       float64 `json:"applied_amount"`
	InstrumentRemaining float64 `json:"instrument_remaining"`
	InvoiceBalance      float64 `json:"invoice_balance"`
	InstrumentStatus    string  `json:"instrument_status"`
	InvoiceStatus       string  `json:"invoice_status"`
}

func toResultDTO(res Result) resultDTO {
	return resultDTO{
		AllocationID:        res.AllocationID,
		AppliedAmount:       res.AppliedAmount,
		InstrumentRemaining: res.InstrumentRemaining,
		InvoiceBalance:      res.InvoiceBalance,
		InstrumentStatus:    string(res.InstrumentStatus),
		InvoiceStatus:       string(res.InvoiceStatus),
	}
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.service.Allocate(r.Context(), AllocateInput{
		InstrumentID: req.InstrumentID,
		InvoiceID:    req.InvoiceID,
		Amount:       req.Amount,
	})
	if err != nil {
		h.logger.Error("allocate",
			slog.Int64("instrument_id", req.InstrumentID),
			slog.Int64("invoice_id", req.InvoiceID),
			slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultDTO(res))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid allocation id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.service.Reverse(r.Context(), ReverseInput{
		AllocationID: id,
		Reason:       req.Reason,
	}, h.audit)
	if err != nil {
		h.logger.Error("reverse allocation", slog.Int64("allocation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorTable)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultDTO(res))
}
