//go:build gcloud

package observability

import (
	"context"
	"fmt"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
)

func newExporters(_ context.Context, cfg Config) (exporters, error) {
	traceExp, err := texporter.New(texporter.WithProjectID(cfg.GCPProjectID))
	if err != nil {
		return exporters{}, fmt.Errorf("failed to create cloud trace exporter: %w", err)
	}

	metricExp, err := mexporter.New(mexporter.WithProjectID(cfg.GCPProjectID))
	if err != nil {
		return exporters{}, fmt.Errorf("failed to create cloud monitoring exporter: %w", err)
	}

	return exporters{trace: traceExp, metric: metricExp}, nil
}
