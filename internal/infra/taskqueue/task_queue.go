package taskqueue

import (
	"context"
	"errors"
)

//go:generate mockgen -source=task_queue.go -destination=mock.go -package=taskqueue

// ErrTaskQueueUnavailable is returned when no persistent backend is configured.
var ErrTaskQueueUnavailable = errors.New("task queue unavailable")

// TaskQueue is the persistent scheduling primitive that survives process restarts.
type TaskQueue interface {
	RegisterTrigger(ctx context.Context, task *TriggerTask) (*TaskResponse, error)
	DeleteTask(ctx context.Context, taskName string) error
}
