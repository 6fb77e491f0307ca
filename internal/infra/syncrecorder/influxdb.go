//go:build !gcloud

package syncrecorder

import (
	"context"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

const measurement = "drain_run"

type influxDBRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewRecorder(ctx context.Context, cfg *Config) (domain.DrainRecorder, error) {
	if cfg.Disabled {
		slog.InfoContext(ctx, "drain result recording disabled")
		return Noop{}, nil
	}

	if !cfg.InfluxDB.configured() {
		slog.WarnContext(ctx, "InfluxDB token or org not configured, drain result recording disabled",
			slog.String("url", cfg.InfluxDB.URL),
		)
		return Noop{}, nil
	}

	client := influxdb2.NewClient(cfg.InfluxDB.URL, cfg.InfluxDB.Token)

	slog.InfoContext(ctx, "drain result recorder initialized",
		slog.String("type", "influxdb"),
		slog.String("url", cfg.InfluxDB.URL),
		slog.String("bucket", cfg.InfluxDB.Bucket),
	)

	return &influxDBRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxDB.Org, cfg.InfluxDB.Bucket),
	}, nil
}

func (r *influxDBRecorder) RecordDrain(ctx context.Context, run domain.DrainRun) error {
	if err := r.writeAPI.WritePoint(ctx, drainPoint(run)); err != nil {
		slog.WarnContext(ctx, "failed to write drain run to InfluxDB",
			slog.String("error", err.Error()),
			slog.String("run_id", run.RunID),
		)
	}
	return nil
}

func drainPoint(run domain.DrainRun) *write.Point {
	runID := run.RunID
	if runID == "" {
		runID = "default"
	}

	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"run_id": runID,
		},
		map[string]any{
			"queued":        run.Queued,
			"processed":     run.Processed,
			"succeeded":     run.Succeeded,
			"retried":       run.Retried,
			"deferred":      run.Deferred,
			"unresolvable":  run.Unresolvable,
			"dead_lettered": run.DeadLettered,
			"conflicts":     run.Conflicts,
			"duration_ms":   run.Duration.Milliseconds(),
		},
		run.StartedAt,
	)
}

func (r *influxDBRecorder) Flush(ctx context.Context) error {
	return r.writeAPI.Flush(ctx)
}

func (r *influxDBRecorder) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
