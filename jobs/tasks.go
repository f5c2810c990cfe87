package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup removes idempotency keys past their retention.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskBacklogRefresh publishes the pending-change backlog gauge.
	TaskBacklogRefresh = "changes:backlog_refresh"

	// DefaultIdempotencyRetention is how long a submission key can be replayed.
	DefaultIdempotencyRetention = 72 * time.Hour
)

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the payload retention, falling back to the default.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return DefaultIdempotencyRetention
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	payload := IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewBacklogRefreshTask constructs the backlog refresh task.
func NewBacklogRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskBacklogRefresh, nil)
}

// NewTask builds a task by name with its default payload.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(DefaultIdempotencyRetention)
	case TaskBacklogRefresh:
		return NewBacklogRefreshTask(), nil
	default:
		return nil, fmt.Errorf("jobs: unsupported job %s", name)
	}
}
