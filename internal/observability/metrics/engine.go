package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	engineMeterName = "remind.engine"
)

type EngineMetrics struct {
	armOutcomes         metric.Int64Counter
	fires               metric.Int64Counter
	syncItems           metric.Int64Counter
	syncConflicts       metric.Int64Counter
	deadLetters         metric.Int64Counter
	drainDuration       metric.Float64Histogram
	fallbackTransitions metric.Int64Counter
}

func NewEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter(engineMeterName)

	armOutcomes, err := meter.Int64Counter(
		"remind_arm_total",
		metric.WithDescription("Trigger arm attempts by outcome"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return nil, err
	}

	fires, err := meter.Int64Counter(
		"remind_fire_total",
		metric.WithDescription("Reminder fires by source"),
		metric.WithUnit("{fire}"),
	)
	if err != nil {
		return nil, err
	}

	syncItems, err := meter.Int64Counter(
		"remind_sync_items_total",
		metric.WithDescription("Sync queue items processed by operation and outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	syncConflicts, err := meter.Int64Counter(
		"remind_sync_conflicts_total",
		metric.WithDescription("Conflicts detected against the remote store"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	deadLetters, err := meter.Int64Counter(
		"remind_sync_dead_letters_total",
		metric.WithDescription("Sync queue items moved to the dead-letter list"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	drainDuration, err := meter.Float64Histogram(
		"remind_sync_drain_duration_seconds",
		metric.WithDescription("Sync drain run duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
		),
	)
	if err != nil {
		return nil, err
	}

	fallbackTransitions, err := meter.Int64Counter(
		"remind_fallback_transitions_total",
		metric.WithDescription("Fallback mode transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		armOutcomes:         armOutcomes,
		fires:               fires,
		syncItems:           syncItems,
		syncConflicts:       syncConflicts,
		deadLetters:         deadLetters,
		drainDuration:       drainDuration,
		fallbackTransitions: fallbackTransitions,
	}, nil
}

func (m *EngineMetrics) RecordArm(ctx context.Context, outcome string) {
	m.armOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *EngineMetrics) RecordFire(ctx context.Context, source string) {
	m.fires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (m *EngineMetrics) RecordSyncItem(ctx context.Context, operation, outcome string) {
	m.syncItems.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (m *EngineMetrics) RecordConflict(ctx context.Context, table, resolution string) {
	m.syncConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("resolution", resolution),
	))
}

func (m *EngineMetrics) RecordDeadLetter(ctx context.Context, operation string) {
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

func (m *EngineMetrics) RecordDrainDuration(ctx context.Context, duration time.Duration, processed int) {
	m.drainDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("empty", processed == 0),
	))
}

func (m *EngineMetrics) RecordFallbackTransition(ctx context.Context, inFallback bool, reason string) {
	to := "normal"
	if inFallback {
		to = "fallback"
	}
	m.fallbackTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("to", to),
		attribute.String("reason", reason),
	))
}
