package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// Client enqueues ledger tasks and reads queue state.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewClient connects a producer and an inspector to the same Redis.
func NewClient(redis asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redis), inspector: asynq.NewInspector(redis)}
}

// Enqueue submits task on the default queue.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(defaultMaxRetry))
}

// Inspector exposes the queue inspector.
func (c *Client) Inspector() *asynq.Inspector {
	if c == nil {
		return nil
	}
	return c.inspector
}

// Close releases both connections.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return errors.Join(c.inspector.Close(), c.client.Close())
}
