package pos

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// Handler exposes the ingestion endpoint to the point-of-sale channel.
type Handler struct {
	logger *slog.Logger
	svc    *Service
	// keyHash is the bcrypt hash of the shared channel secret. Empty means
	// the channel is not configured; every request is then rejected
	// (fail closed) rather than silently skipping the check.
	keyHash string
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, svc *Service, keyHash string) *Handler {
	return &Handler{logger: logger, svc: svc, keyHash: keyHash}
}

// MountRoutes registers POS routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.createAdjustment)
}

const keyHeader = "X-Pos-Key"

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respond(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   CodeUnauthorized,
			Message: "missing or invalid channel key",
		})
		return
	}

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   CodeInvalidPayload,
			Message: "malformed JSON body",
		})
		return
	}

	result, err := h.svc.Ingest(r.Context(), req)
	if err != nil {
		var chErr *ChannelError
		if errors.As(err, &chErr) {
			respond(w, statusFor(chErr.Code), Response{
				Success: false,
				Error:   chErr.Code,
				Message: chErr.Message,
			})
			return
		}
		h.logger.Error("pos adjustment failed", slog.Any("error", err))
		respond(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   CodeInternalError,
			Message: "adjustment could not be processed",
		})
		return
	}

	respond(w, http.StatusOK, Response{Success: true, Data: result})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.keyHash == "" {
		return false
	}
	key := r.Header.Get(keyHeader)
	if key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h.keyHash), []byte(key)) == nil
}

func statusFor(code string) int {
	switch code {
	case CodeInvalidPayload:
		return http.StatusBadRequest
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeCounterpartyMissing, CodeInvoiceMissing:
		return http.StatusNotFound
	case CodeInvoiceMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
