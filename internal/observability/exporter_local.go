//go:build !gcloud

package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

// newExporters uses OTLP over HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set. Without it
// the providers run with no exporter.
func newExporters(ctx context.Context, _ Config) (exporters, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		slog.Debug("OTEL_EXPORTER_OTLP_ENDPOINT not set, telemetry export disabled")
		return exporters{}, nil
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return exporters{}, fmt.Errorf("failed to create otlp trace exporter: %w", err)
	}

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return exporters{}, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}

	return exporters{trace: traceExp, metric: metricExp}, nil
}
