package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/numera-app/numera/internal/app"
	"github.com/numera-app/numera/internal/auth"
	"github.com/numera-app/numera/internal/invoicing"
	"github.com/numera-app/numera/internal/numbering/counter"
	"github.com/numera-app/numera/internal/numbering/scheme"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/platform/cache"
	"github.com/numera-app/numera/internal/platform/db"
	"github.com/numera-app/numera/internal/sellers"
	"github.com/numera-app/numera/internal/shared"
	"github.com/numera-app/numera/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	keyAuth, err := auth.NewKeyAuth(cfg.APIKeys)
	if err != nil {
		logger.Error("parse api keys", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	sellerRepo := sellers.NewRepository(pool)
	sellerService := sellers.NewService(sellerRepo)
	sellerHandler := sellers.NewHandler(logger, sellerService)

	schemeRepo := scheme.NewRepository(pool)
	schemeCache := scheme.NewCache(redisClient, cfg.SchemeCacheTTL)
	schemeService := scheme.NewService(logger, schemeRepo, sellerService, schemeCache, auditLogger)
	schemeHandler := scheme.NewHandler(logger, schemeService)

	counterRepo := counter.NewRepository(pool)
	counterService := counter.NewService(logger, counterRepo, sellerService, schemeService, auditLogger)
	counterHandler := counter.NewHandler(logger, counterService)

	invoiceRepo := invoicing.NewRepository(pool, counterRepo)
	invoiceService := invoicing.NewService(logger, invoiceRepo, sellerService, schemeService, counterService, idempotencyStore, auditLogger, metrics)
	invoiceHandler := invoicing.NewHandler(logger, invoiceService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		KeyAuth:         keyAuth,
		SellersHandler:  sellerHandler,
		SchemeHandler:   schemeHandler,
		InvoiceHandler:  invoiceHandler,
		CountersHandler: counterHandler,
		JobsHandler:     jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
