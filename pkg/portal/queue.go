package portal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// ReceiveTask pulls the next task off the queue. Returns (nil, nil)
// when the queue is empty (HTTP 204). A received task stays invisible
// to other workers until CompleteTask or FailTask terminates it.
func (c *Client) ReceiveTask(ctx context.Context) (*types.Task, error) {
	var task types.Task
	status, err := c.do(ctx, http.MethodPost, "queue/receive", nil, nil, &task, true)
	if err != nil {
		return nil, fmt.Errorf("failed to receive task: %w", err)
	}
	if status == http.StatusNoContent {
		metrics.QueueEmptyPolls.Inc()
		return nil, nil
	}
	return &task, nil
}

// CompleteTask marks a task done. Skipped tasks are also completed so
// the queue never retries a permanently unsolvable state.
func (c *Client) CompleteTask(ctx context.Context, id int64) error {
	if err := c.Put(ctx, "queue/complete/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("failed to complete task %d: %w", id, err)
	}
	return nil
}

// FailTask marks a task failed; it stays in the queue in a terminal
// fail state for operators to inspect.
func (c *Client) FailTask(ctx context.Context, id int64) error {
	if err := c.Put(ctx, "queue/fail/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("failed to fail task %d: %w", id, err)
	}
	return nil
}

// PublishTask enqueues a new task. The queue deduplicates on the task
// identity fields, so re-publishing an already pending task is safe.
func (c *Client) PublishTask(ctx context.Context, payload *types.TaskPayload) error {
	if err := c.Post(ctx, "api/queue/publish", payload, nil); err != nil {
		return fmt.Errorf("failed to publish %s task: %w", payload.Type, err)
	}
	metrics.TasksPublished.WithLabelValues(string(payload.Type)).Inc()
	return nil
}
