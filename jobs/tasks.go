package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity checks that every company's trial balance balances.
	TaskGLIntegrity = "gl:integrity"
	// TaskReportsWarmup precomputes the daily reports into the report cache.
	TaskReportsWarmup = "reports:warmup"
	// TaskIdempotencyCleanup purges expired payment idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerScopePayload narrows a ledger job to one company and date. Zero values
// mean every company and today.
type LedgerScopePayload struct {
	CompanyID int64  `json:"company_id,omitempty"`
	AsOf      string `json:"as_of,omitempty"`
}

func (p LedgerScopePayload) asOf(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(time.DateOnly, p.AsOf)
}

// IdempotencyCleanupPayload sets how old a key must be before it is purged.
type IdempotencyCleanupPayload struct {
	OlderThan string `json:"older_than,omitempty"`
}

// NewGLIntegrityTask constructs an integrity-check task.
func NewGLIntegrityTask(payload LedgerScopePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}

// NewReportsWarmupTask constructs a report warm-up task.
func NewReportsWarmupTask(payload LedgerScopePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
