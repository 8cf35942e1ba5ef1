package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tallybooks/tallybooks/cmd/tallybooks/cli"
	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/accounting/accounts"
	"github.com/tallybooks/tallybooks/internal/accounting/mappings"
	"github.com/tallybooks/tallybooks/internal/accounting/posting"
	"github.com/tallybooks/tallybooks/internal/accounting/reports"
	"github.com/tallybooks/tallybooks/internal/app"
	"github.com/tallybooks/tallybooks/internal/audit"
	"github.com/tallybooks/tallybooks/internal/observability"
	"github.com/tallybooks/tallybooks/internal/platform/cache"
	"github.com/tallybooks/tallybooks/internal/platform/db"
	"github.com/tallybooks/tallybooks/internal/rbac"
	"github.com/tallybooks/tallybooks/internal/shared"
	"github.com/tallybooks/tallybooks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportCache.WithLogger(logger)

	mappingService := mappings.NewService(mappings.NewRepository(dbpool))
	accountService := accounts.NewService(accounts.NewRepository(dbpool))
	accountService.WithCache(reportCache)
	accountService.WithLogger(logger)

	postingService := posting.NewService(accounting.NewRepository(dbpool), mappingService, auditLogger)
	postingService.WithCache(reportCache)
	postingService.WithMetrics(metrics)
	postingService.WithIdempotency(idempotencyStore)
	postingService.WithLogger(logger)

	reportService := reports.NewService(reports.NewRepository(dbpool), reportCache)
	reportService.WithMetrics(metrics)
	reportService.WithLogger(logger)
	if err := reportService.WithAgingPeriods(cfg.AgingPeriods); err != nil {
		logger.Error("aging periods", slog.Any("error", err))
		os.Exit(1)
	}

	rbacService := rbac.NewService(rbac.NewStore(dbpool), rbac.NewAccessCache(cfg.AccessCacheTTL))
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		RBACMiddleware: rbac.Middleware{Service: rbacService, Logger: logger},
		Company: []app.RouteMounter{
			accounts.NewHandler(logger, accountService),
			mappings.NewHandler(logger, mappingService),
			posting.NewHandler(logger, postingService),
			reports.NewHandler(logger, reportService),
			audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		},
		Jobs:    jobs.NewHandler(inspector, logger),
		Metrics: metrics,
		Health: func(r *http.Request) error {
			if err := dbpool.Ping(r.Context()); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runJobs handles `tallybooks jobs trigger <task> [company_id]` and
// `tallybooks jobs inspect`.
func runJobs(cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tallybooks jobs trigger <task> [company_id] | inspect")
	}
	c := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: tallybooks jobs trigger <task> [company_id]")
		}
		var scope jobs.LedgerScopePayload
		if len(args) > 2 {
			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid company id %q", args[2])
			}
			scope.CompanyID = id
		}
		info, err := c.Trigger(ctx, args[1], scope)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
	case "inspect":
		stats, err := c.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d failed_today=%d paused=%t\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed, stats.Paused)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
