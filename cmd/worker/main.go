package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/numera-app/numera/internal/app"
	jobmetrics "github.com/numera-app/numera/internal/jobs"
	"github.com/numera-app/numera/internal/numbering/counter"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/platform/db"
	"github.com/numera-app/numera/internal/sellers"
	"github.com/numera-app/numera/internal/shared"
	"github.com/numera-app/numera/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	sellerService := sellers.NewService(sellers.NewRepository(pool))
	counterRepo := counter.NewRepository(pool)
	// The worker never issues invoices, so the scan runs without a
	// template source.
	counterService := counter.NewService(logger, counterRepo, sellerService, noTemplates{}, shared.NewAuditLogger(pool))

	driftJob := jobs.NewDriftScanJob(counterService, metrics, logger, jobMetrics)

	driftTask, err := jobs.NewCounterDriftScanTask(jobs.DriftScanPayload{})
	if err != nil {
		logger.Error("build drift scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCounterDriftScan, Handler: driftJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DriftScanCron, Task: driftTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("drift_scan_cron", cfg.DriftScanCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// noTemplates satisfies the counter service's template lookup; the drift
// report's template field is unused by the scan.
type noTemplates struct{}

func (noTemplates) CurrentTemplate(context.Context, int64) (string, error) {
	return "", nil
}
