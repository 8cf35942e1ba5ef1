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

	"github.com/hibiken/asynq"

	"github.com/tallybooks/tallybooks/internal/accounting/reports"
	"github.com/tallybooks/tallybooks/internal/app"
	jobmetrics "github.com/tallybooks/tallybooks/internal/jobs"
	"github.com/tallybooks/tallybooks/internal/observability"
	"github.com/tallybooks/tallybooks/internal/platform/cache"
	"github.com/tallybooks/tallybooks/internal/platform/db"
	"github.com/tallybooks/tallybooks/internal/shared"
	"github.com/tallybooks/tallybooks/jobs"
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

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportCache.WithLogger(logger)
	reportService := reports.NewService(reports.NewRepository(pool), reportCache)
	reportService.WithLogger(logger)
	if err := reportService.WithAgingPeriods(cfg.AgingPeriods); err != nil {
		logger.Error("aging periods", slog.Any("error", err))
		os.Exit(1)
	}

	registry := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(registry.Registerer())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: registry.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	integrityJob := jobs.NewGLIntegrityJob(reportService, logger, metrics)
	warmupJob := jobs.NewReportsWarmupJob(reportService, logger, metrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   metrics,
	}

	integrityTask, err := jobs.NewGLIntegrityTask(jobs.LedgerScopePayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportsWarmupTask(jobs.LedgerScopePayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		Redis:       asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Routes: []jobs.Route{
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Schedules: []jobs.Schedule{
			{Spec: cfg.IntegrityCron, Task: integrityTask},
			{Spec: cfg.WarmupCron, Task: warmupTask},
			{Spec: cfg.IdempotencyCron, Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
