package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const engineTracerName = "github.com/KasumiMercury/primind-remind-engine/internal/service"

func EngineTracer() trace.Tracer {
	return otel.Tracer(engineTracerName)
}

func StartDrainSpan(ctx context.Context, runID string, queued int) (context.Context, trace.Span) {
	return EngineTracer().Start(ctx, "sync.drain",
		trace.WithAttributes(
			attribute.String("drain.run_id", runID),
			attribute.Int("drain.queued", queued),
		),
	)
}

func StartSyncItemSpan(ctx context.Context, itemID, operation, table string, recordID int64) (context.Context, trace.Span) {
	return EngineTracer().Start(ctx, "sync.item."+operation,
		trace.WithAttributes(
			attribute.String("sync.item_id", itemID),
			attribute.String("sync.table", table),
			attribute.Int64("record_id", recordID),
		),
	)
}

func StartArmSweepSpan(ctx context.Context, records int) (context.Context, trace.Span) {
	return EngineTracer().Start(ctx, "trigger.arm_all",
		trace.WithAttributes(
			attribute.Int("sweep.records", records),
		),
	)
}

func StartExternalAPISpan(ctx context.Context, operation, url string) (context.Context, trace.Span) {
	return EngineTracer().Start(ctx, "remote.external_api."+operation,
		trace.WithAttributes(
			attribute.String("url", url),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func RecordDrainResult(span trace.Span, processed, failed, deadLettered int, err error) {
	span.SetAttributes(
		attribute.Int("drain.processed", processed),
		attribute.Int("drain.failed", failed),
		attribute.Int("drain.dead_lettered", deadLettered),
	)
	RecordResult(span, err)
}

func RecordArmSweepResult(span trace.Span, armed, dropped, failed int) {
	span.SetAttributes(
		attribute.Int("sweep.armed", armed),
		attribute.Int("sweep.dropped", dropped),
		attribute.Int("sweep.failed", failed),
	)
	span.SetStatus(codes.Ok, "")
}

func RecordResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// InjectToHTTPRequest propagates the span context of ctx into outbound request headers.
func InjectToHTTPRequest(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}
