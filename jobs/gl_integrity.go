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

// LedgerReports is the slice of the report service the ledger jobs use.
type LedgerReports interface {
	Companies(ctx context.Context) ([]int64, error)
	TrialBalance(ctx context.Context, companyID int64, p reports.TrialBalanceParams) (reports.TrialBalance, error)
	BalanceSheet(ctx context.Context, companyID int64, p reports.BalanceSheetParams) (reports.BalanceSheet, error)
}

// GLIntegrityJob verifies each company's trial balance and reports imbalances.
type GLIntegrityJob struct {
	Reports LedgerReports
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGLIntegrityJob wires dependencies for the integrity handler.
func NewGLIntegrityJob(svc LedgerReports, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Reports: svc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// IntegrityResult summarises one integrity run.
type IntegrityResult struct {
	Checked    int
	Imbalanced []int64
}

// Handle processes gl:integrity tasks. An imbalance is logged and counted; it
// does not fail the task.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload LedgerScopePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("gl integrity: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run checks the companies named by the payload.
func (j *GLIntegrityJob) Run(ctx context.Context, payload LedgerScopePayload) (result IntegrityResult, err error) {
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	asOf, err := payload.asOf(nowFrom(j.clock))
	if err != nil {
		return result, fmt.Errorf("gl integrity: as_of: %v: %w", err, asynq.SkipRetry)
	}
	logger := jobLogger(j.Logger, TaskGLIntegrity).With(slog.String("as_of", asOf.Format(time.DateOnly)))

	companies, err := scopeCompanies(ctx, j.Reports, payload)
	if err != nil {
		logger.Error("load companies", slog.Any("error", err))
		return result, err
	}
	for _, companyID := range companies {
		tb, err := j.Reports.TrialBalance(ctx, companyID, reports.TrialBalanceParams{AsOf: asOf})
		if err != nil {
			logger.Error("trial balance", slog.Int64("company_id", companyID), slog.Any("error", err))
			return result, err
		}
		result.Checked++
		if !tb.IsBalanced {
			result.Imbalanced = append(result.Imbalanced, companyID)
			j.Metrics.AddImbalance(companyID)
			logger.Warn("ledger out of balance",
				slog.Int64("company_id", companyID),
				slog.String("total_debits", tb.TotalDebits.StringFixed(2)),
				slog.String("total_credits", tb.TotalCredits.StringFixed(2)),
				slog.String("difference", tb.Difference.StringFixed(2)))
		}
	}
	logger.Info("gl integrity check completed", slog.Int("companies", result.Checked), slog.Int("imbalanced", len(result.Imbalanced)))
	return result, nil
}

func nowFrom(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}

func scopeCompanies(ctx context.Context, svc LedgerReports, payload LedgerScopePayload) ([]int64, error) {
	if payload.CompanyID > 0 {
		return []int64{payload.CompanyID}, nil
	}
	return svc.Companies(ctx)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}
