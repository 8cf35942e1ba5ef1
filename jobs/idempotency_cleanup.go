package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tallybooks/tallybooks/internal/jobs"
)

// KeyPurger deletes idempotency keys older than a cutoff.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob purges stale payment idempotency keys.
type IdempotencyCleanupJob struct {
	Store     KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes idempotency:cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	retention := j.Retention
	if payload.OlderThan != "" {
		d, err := time.ParseDuration(payload.OlderThan)
		if err != nil || d <= 0 {
			return fmt.Errorf("idempotency cleanup: older_than %q: %w", payload.OlderThan, asynq.SkipRetry)
		}
		retention = d
	}
	if retention <= 0 {
		return fmt.Errorf("idempotency cleanup: retention not configured: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		jobLogger(j.Logger, TaskIdempotencyCleanup).Error("purge idempotency keys", slog.Any("error", err))
		return err
	}
	jobLogger(j.Logger, TaskIdempotencyCleanup).Info("purged idempotency keys", slog.Duration("older_than", retention))
	return nil
}
