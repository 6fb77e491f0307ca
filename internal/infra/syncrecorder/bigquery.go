//go:build gcloud

package syncrecorder

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

type bigQueryRow struct {
	RunID        string    `bigquery:"run_id"`
	StartedAt    time.Time `bigquery:"started_at"`
	DurationMS   int64     `bigquery:"duration_ms"`
	Queued       int64     `bigquery:"queued"`
	Processed    int64     `bigquery:"processed"`
	Succeeded    int64     `bigquery:"succeeded"`
	Retried      int64     `bigquery:"retried"`
	Deferred     int64     `bigquery:"deferred"`
	Unresolvable int64     `bigquery:"unresolvable"`
	DeadLettered int64     `bigquery:"dead_lettered"`
	Conflicts    int64     `bigquery:"conflicts"`
}

type bigQueryRecorder struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
}

func NewRecorder(ctx context.Context, cfg *Config) (domain.DrainRecorder, error) {
	if cfg.Disabled {
		slog.InfoContext(ctx, "drain result recording disabled")
		return Noop{}, nil
	}

	if cfg.BigQuery.ProjectID == "" {
		slog.WarnContext(ctx, "BigQuery project ID not configured, drain result recording disabled")
		return Noop{}, nil
	}

	client, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create BigQuery client, drain result recording disabled",
			slog.String("error", err.Error()),
			slog.String("project_id", cfg.BigQuery.ProjectID),
		)
		return Noop{}, nil
	}

	slog.InfoContext(ctx, "drain result recorder initialized",
		slog.String("type", "bigquery"),
		slog.String("project_id", cfg.BigQuery.ProjectID),
		slog.String("dataset", cfg.BigQuery.Dataset),
		slog.String("table", cfg.BigQuery.Table),
	)

	return &bigQueryRecorder{
		client:   client,
		inserter: client.Dataset(cfg.BigQuery.Dataset).Table(cfg.BigQuery.Table).Inserter(),
	}, nil
}

func (r *bigQueryRecorder) RecordDrain(ctx context.Context, run domain.DrainRun) error {
	row := &bigQueryRow{
		RunID:        run.RunID,
		StartedAt:    run.StartedAt,
		DurationMS:   run.Duration.Milliseconds(),
		Queued:       int64(run.Queued),
		Processed:    int64(run.Processed),
		Succeeded:    int64(run.Succeeded),
		Retried:      int64(run.Retried),
		Deferred:     int64(run.Deferred),
		Unresolvable: int64(run.Unresolvable),
		DeadLettered: int64(run.DeadLettered),
		Conflicts:    int64(run.Conflicts),
	}

	if err := r.inserter.Put(ctx, row); err != nil {
		slog.WarnContext(ctx, "failed to insert drain run to BigQuery",
			slog.String("error", err.Error()),
			slog.String("run_id", run.RunID),
		)
	}
	return nil
}

func (r *bigQueryRecorder) Flush(ctx context.Context) error {
	return nil
}

func (r *bigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
