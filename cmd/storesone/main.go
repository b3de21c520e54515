package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NCGHoldings/StoresONE-sub004/internal/allocation"
	"github.com/NCGHoldings/StoresONE-sub004/internal/app"
	"github.com/NCGHoldings/StoresONE-sub004/internal/exposure"
	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
	"github.com/NCGHoldings/StoresONE-sub004/internal/journal"
	"github.com/NCGHoldings/StoresONE-sub004/internal/ledger"
	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/cache"
	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/db"
	"github.com/NCGHoldings/StoresONE-sub004/internal/pos"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, per-terminal rate limiting degraded", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	repo := finance.NewRepository(pool)
	auditLogger := finance.NewAuditLogger(pool)

	financeService := finance.NewService(repo)
	allocationService := allocation.NewService(repo, logger)
	ledgerService := ledger.NewService(repo)
	exposureService := exposure.NewService(repo)
	journalService := journal.NewService(journal.NewRepository(pool))

	posLimiter := pos.NewRateLimiter(redisClient, cfg.PosRateLimit)
	posService := pos.NewService(repo, allocationService, journalService, posLimiter, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		FinanceHandler:    finance.NewHandler(logger, financeService),
		AllocationHandler: allocation.NewHandler(logger, allocationService, auditLogger),
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		ExposureHandler:   exposure.NewHandler(logger, exposureService),
		PosHandler:        pos.NewHandler(logger, posService, cfg.PosAPIKeyHash),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	logger.Info("http server stopped")
}
