package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultConcurrency     = 4
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxRetry        = 3
)

// Route binds a task type to its handler.
type Route struct {
	Type    string
	Handler asynq.HandlerFunc
}

// Schedule enqueues Task on the cron expression Spec. An empty Spec disables
// the entry.
type Schedule struct {
	Spec string
	Task *asynq.Task
}

// WorkerConfig configures the ledger worker.
type WorkerConfig struct {
	Redis           asynq.RedisClientOpt
	Concurrency     int
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Routes          []Route
	Schedules       []Schedule
}

// Worker runs the task server and, when schedules are configured, the cron
// scheduler that feeds it.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates cfg and prepares the server. Nothing connects to Redis
// until Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	mux := asynq.NewServeMux()
	for _, route := range cfg.Routes {
		if route.Type == "" || route.Handler == nil {
			return nil, fmt.Errorf("jobs: incomplete route %q", route.Type)
		}
		mux.HandleFunc(route.Type, route.Handler)
	}

	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task failed",
				slog.String("task", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})

	var scheduler *asynq.Scheduler
	for _, entry := range cfg.Schedules {
		if entry.Spec == "" {
			continue
		}
		if entry.Task == nil {
			return nil, fmt.Errorf("jobs: schedule %q has no task", entry.Spec)
		}
		if scheduler == nil {
			scheduler = asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{Location: time.UTC})
		}
		if _, err := scheduler.Register(entry.Spec, entry.Task, asynq.Queue(QueueDefault), asynq.MaxRetry(defaultMaxRetry)); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s: %w", entry.Task.Type(), err)
		}
		logger.Info("job scheduled", slog.String("task", entry.Task.Type()), slog.String("cron", entry.Spec))
	}

	return &Worker{server: server, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled or the server stops on its own.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
		defer w.scheduler.Shutdown()
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	w.logger.Info("worker started", slog.String("queue", QueueDefault), slog.Bool("scheduler", w.scheduler != nil))

	<-ctx.Done()
	w.logger.Info("worker stopping")
	w.server.Shutdown()
	return ctx.Err()
}
