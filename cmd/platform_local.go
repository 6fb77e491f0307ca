//go:build !gcloud

package main

import (
	"context"
	"log/slog"

	"github.com/KasumiMercury/primind-remind-engine/internal/config"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/taskqueue"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/logging"
)

// initTaskQueue registers triggers with Primind Tasks. Without a URL the scheduler runs on
// in-process timers only.
func initTaskQueue(_ context.Context, cfg *config.Config) (taskqueue.TaskQueue, func() error, error) {
	if cfg.TaskQueue.PrimindTasksURL == "" {
		slog.Warn("PRIMIND_TASKS_URL not set, triggers are timer-only")
		return nil, nil, nil
	}

	tq := taskqueue.NewPrimindTasksClient(
		cfg.TaskQueue.PrimindTasksURL,
		cfg.TaskQueue.QueueName,
		cfg.TaskQueue.MaxRetries,
	)

	slog.Info("task queue initialized",
		slog.String("type", "primind_tasks"),
		slog.String("url", cfg.TaskQueue.PrimindTasksURL),
		slog.String("queue", cfg.TaskQueue.QueueName),
	)
	return tq, nil, nil
}

func platformIdentity() identity {
	return identity{
		serviceName: envOr("SERVICE_NAME", defaultServiceName),
		env:         logging.EnvDev,
	}
}
