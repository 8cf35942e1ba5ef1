package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tallybooks/tallybooks/internal/accounting/reports"
	jobmetrics "github.com/tallybooks/tallybooks/internal/jobs"
)

// ReportsWarmupJob fills the report cache with the day's trial balance and
// balance sheet for every company.
type ReportsWarmupJob struct {
	Reports LedgerReports
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warm-up handler.
func NewReportsWarmupJob(svc LedgerReports, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{Reports: svc, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second, clock: time.Now}
}

// Handle processes reports:warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload LedgerScopePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reports warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run warms the companies named by the payload and returns how many were warmed.
func (j *ReportsWarmupJob) Run(ctx context.Context, payload LedgerScopePayload) (warmed int, err error) {
	tracker := j.Metrics.Track(TaskReportsWarmup)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	asOf, err := payload.asOf(nowFrom(j.clock))
	if err != nil {
		return 0, fmt.Errorf("reports warmup: as_of: %v: %w", err, asynq.SkipRetry)
	}
	logger := jobLogger(j.Logger, TaskReportsWarmup)
	companies, err := scopeCompanies(ctx, j.Reports, payload)
	if err != nil {
		logger.Error("load companies", slog.Any("error", err))
		return 0, err
	}
	for _, companyID := range companies {
		if err := j.warm(ctx, companyID, asOf); err != nil {
			logger.Error("warm company", slog.Int64("company_id", companyID), slog.Any("error", err))
			return warmed, err
		}
		warmed++
	}
	logger.Info("completed reports warmup", slog.Int("companies", warmed), slog.Duration("duration", time.Since(start)))
	return warmed, nil
}

func (j *ReportsWarmupJob) warm(ctx context.Context, companyID int64, asOf time.Time) error {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	if _, err := j.Reports.TrialBalance(ctx, companyID, reports.TrialBalanceParams{AsOf: asOf}); err != nil {
		return err
	}
	_, err := j.Reports.BalanceSheet(ctx, companyID, reports.BalanceSheetParams{AsOf: asOf})
	return err
}
