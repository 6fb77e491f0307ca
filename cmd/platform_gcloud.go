//go:build gcloud

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/KasumiMercury/primind-remind-engine/internal/config"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/taskqueue"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/logging"
)

// initTaskQueue registers triggers as Cloud Tasks that call back into /api/v1/triggers/fire.
func initTaskQueue(ctx context.Context, cfg *config.Config) (taskqueue.TaskQueue, func() error, error) {
	tq := cfg.TaskQueue
	client, err := taskqueue.NewCloudTasksClient(ctx, taskqueue.CloudTasksConfig{
		ProjectID:  tq.GCloudProjectID,
		LocationID: tq.GCloudLocationID,
		QueueID:    tq.GCloudQueueID,
		TargetURL:  tq.GCloudTargetURL,
		MaxRetries: tq.MaxRetries,
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("task queue initialized",
		slog.String("type", "cloud_tasks"),
		slog.String("project", tq.GCloudProjectID),
		slog.String("location", tq.GCloudLocationID),
		slog.String("queue", tq.GCloudQueueID),
		slog.String("target", tq.GCloudTargetURL),
	)

	return client, client.Close, nil
}

// platformIdentity reads the Cloud Run service metadata.
func platformIdentity() identity {
	id := identity{
		serviceName: envOr("K_SERVICE", defaultServiceName),
		revision:    os.Getenv("K_REVISION"),
		env:         logging.EnvProd,
		projectID:   os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}
	if id.projectID == "" {
		id.projectID = os.Getenv("GCLOUD_PROJECT_ID")
	}
	return id
}
