// Package cli implements the operator subcommands of the tallybooks binary.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tallybooks/tallybooks/jobs"
)

// JobsCLI triggers ledger jobs by name and reports queue state.
type JobsCLI struct {
	client    *jobs.Client
	retention time.Duration
}

// NewJobsCLI connects to the queue at redisAddr. Cleanup jobs purge keys
// older than retention.
func NewJobsCLI(redisAddr string, retention time.Duration) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(asynq.RedisClientOpt{Addr: redisAddr}), retention: retention}
}

// Close releases the queue connections.
func (c *JobsCLI) Close() error {
	return c.client.Close()
}

// TaskFor builds the task for a job name. Ledger jobs take an optional
// company scope.
func TaskFor(name string, scope jobs.LedgerScopePayload, retention time.Duration) (*asynq.Task, error) {
	switch name {
	case jobs.TaskGLIntegrity:
		return jobs.NewGLIntegrityTask(scope)
	case jobs.TaskReportsWarmup:
		return jobs.NewReportsWarmupTask(scope)
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues the named job.
func (c *JobsCLI) Trigger(ctx context.Context, name string, scope jobs.LedgerScopePayload) (*asynq.TaskInfo, error) {
	task, err := TaskFor(name, scope, c.retention)
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, task)
}

// InspectQueue reads the default queue counters.
func (c *JobsCLI) InspectQueue() (jobs.QueueHealth, error) {
	return jobs.Snapshot(c.client.Inspector())
}
