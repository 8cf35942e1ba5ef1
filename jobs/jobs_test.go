package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tallybooks/tallybooks/internal/accounting/reports"
	jobmetrics "github.com/tallybooks/tallybooks/internal/jobs"
)

type fakeReports struct {
	mu         sync.Mutex
	companies  []int64
	imbalanced map[int64]bool
	failOn     int64
	tbCalls    []int64
	bsCalls    []int64
	asOf       []time.Time
}

func (f *fakeReports) Companies(context.Context) ([]int64, error) {
	return f.companies, nil
}

func (f *fakeReports) TrialBalance(_ context.Context, companyID int64, p reports.TrialBalanceParams) (reports.TrialBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tbCalls = append(f.tbCalls, companyID)
	f.asOf = append(f.asOf, p.AsOf)
	if companyID == f.failOn {
		return reports.TrialBalance{}, errors.New("database unavailable")
	}
	tb := reports.TrialBalance{AsOf: p.AsOf, TotalDebits: decimal.NewFromInt(100), TotalCredits: decimal.NewFromInt(100), IsBalanced: true}
	if f.imbalanced[companyID] {
		tb.TotalCredits = decimal.NewFromInt(90)
		tb.Difference = decimal.NewFromInt(10)
		tb.IsBalanced = false
	}
	return tb, nil
}

func (f *fakeReports) BalanceSheet(_ context.Context, companyID int64, p reports.BalanceSheetParams) (reports.BalanceSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bsCalls = append(f.bsCalls, companyID)
	return reports.BalanceSheet{AsOf: p.AsOf}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 31, 22, 15, 0, 0, time.UTC)
}

func TestGLIntegrityFlagsImbalancedCompanies(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := &fakeReports{companies: []int64{1, 2, 3}, imbalanced: map[int64]bool{2: true}}
	job := NewGLIntegrityJob(svc, quietLogger(), jobmetrics.NewMetrics(reg))
	job.clock = fixedClock

	result, err := job.Run(context.Background(), LedgerScopePayload{})
	require.NoError(t, err)
	require.Equal(t, 3, result.Checked)
	require.Equal(t, []int64{2}, result.Imbalanced)
	for _, asOf := range svc.asOf {
		require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), asOf)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var imbalances float64
	for _, mf := range families {
		if mf.GetName() == "tallybooks_ledger_imbalances_total" {
			for _, m := range mf.GetMetric() {
				imbalances += m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, 1.0, imbalances)
}

func TestGLIntegrityScopedToOneCompany(t *testing.T) {
	svc := &fakeReports{companies: []int64{1, 2}}
	job := NewGLIntegrityJob(svc, quietLogger(), nil)

	task, err := NewGLIntegrityTask(LedgerScopePayload{CompanyID: 2, AsOf: "2024-01-31"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{2}, svc.tbCalls)
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), svc.asOf[0])
}

func TestGLIntegrityRejectsBadPayload(t *testing.T) {
	job := NewGLIntegrityJob(&fakeReports{}, quietLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewGLIntegrityTask(LedgerScopePayload{AsOf: "31/01/2024"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestGLIntegrityPropagatesReportErrors(t *testing.T) {
	job := NewGLIntegrityJob(&fakeReports{companies: []int64{1, 2}, failOn: 1}, quietLogger(), nil)
	_, err := job.Run(context.Background(), LedgerScopePayload{})
	require.Error(t, err)
}

func TestReportsWarmupBuildsDailyReports(t *testing.T) {
	svc := &fakeReports{companies: []int64{4, 5}}
	job := NewReportsWarmupJob(svc, quietLogger(), nil)
	job.clock = fixedClock

	warmed, err := job.Run(context.Background(), LedgerScopePayload{})
	require.NoError(t, err)
	require.Equal(t, 2, warmed)
	require.Equal(t, []int64{4, 5}, svc.tbCalls)
	require.Equal(t, []int64{4, 5}, svc.bsCalls)
}

func TestReportsWarmupStopsOnFailure(t *testing.T) {
	svc := &fakeReports{companies: []int64{4, 5, 6}, failOn: 5}
	job := &ReportsWarmupJob{Reports: svc, Logger: quietLogger()}

	warmed, err := job.Run(context.Background(), LedgerScopePayload{})
	require.Error(t, err)
	require.Equal(t, 1, warmed)
	require.Equal(t, []int64{4}, svc.bsCalls)
}

type fakePurger struct {
	olderThan time.Duration
	err       error
}

func (f *fakePurger) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	return f.err
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	store := &fakePurger{}
	job := &IdempotencyCleanupJob{Store: store, Retention: 168 * time.Hour, Logger: quietLogger()}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte(`{}`))))
	require.Equal(t, 168*time.Hour, store.olderThan)

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, store.olderThan)

	bad := asynq.NewTask(TaskIdempotencyCleanup, []byte(`{"older_than":"soon"}`))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	store.err = errors.New("conn reset")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body QueueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
}

func TestNewWorkerValidatesRoutesAndSchedules(t *testing.T) {
	redis := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}

	_, err := NewWorker(WorkerConfig{Redis: redis, Logger: quietLogger(), Routes: []Route{{Type: TaskGLIntegrity}}})
	require.Error(t, err)

	_, err = NewWorker(WorkerConfig{Redis: redis, Logger: quietLogger(), Schedules: []Schedule{{Spec: "@daily"}}})
	require.Error(t, err)

	task, err := NewGLIntegrityTask(LedgerScopePayload{})
	require.NoError(t, err)
	w, err := NewWorker(WorkerConfig{
		Redis:     redis,
		Logger:    quietLogger(),
		Routes:    []Route{{Type: TaskGLIntegrity, Handler: func(context.Context, *asynq.Task) error { return nil }}},
		Schedules: []Schedule{{Spec: "", Task: task}},
	})
	require.NoError(t, err)
	require.Nil(t, w.scheduler)
}
