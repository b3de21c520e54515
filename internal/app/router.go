package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/NCGHoldings/StoresONE-sub004/internal/allocation"
	"github.com/NCGHoldings/StoresONE-sub004/internal/exposure"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/ledger"
	"github.com/NCGHoldings/StoresONE-sub004/internal/pos"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	FinanceHandler    *finance.Handler
	AllocationHandler *allocation.Handler
	LedgerHandler     *ledger.Handler
	ExposureHandler   *exposure.Handler
	PosHandler        *pos.Handler
}

// NewRouter constructs the chi.Router with StoresONE defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/finance", func(r chi.Router) {
		if params.FinanceHandler != nil {
			params.FinanceHandler.MountRoutes(r)
		}
		if params.AllocationHandler != nil {
			params.AllocationHandler.MountRoutes(r)
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.ExposureHandler != nil {
			params.ExposureHandler.MountRoutes(r)
		}
	})

	if params.PosHandler != nil {
		r.Route("/pos", params.PosHandler.MountRoutes)
	}

	return r
}
