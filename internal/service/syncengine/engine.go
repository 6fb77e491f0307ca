package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/metrics"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/tracing"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = time.Minute
	DefaultBackoffCap  = 16 * time.Minute
)

const (
	outcomeSynced       = "synced"
	outcomeRetry        = "retry"
	outcomeUnresolvable = "unresolvable"
	outcomeDeadLettered = "dead_lettered"
)

var ErrDrainInProgress = errors.New("drain already in progress")

// Records is the slice of the record store the engine writes back through.
type Records interface {
	Get(ctx context.Context, id int64) (*domain.ReminderRecord, error)
	Mutate(ctx context.Context, id int64, fn records.MutateFunc) (*domain.ReminderRecord, error)
}

// RearmFunc is called when a sync write-back changed scheduling-relevant fields.
type RearmFunc func(ctx context.Context, record *domain.ReminderRecord)

type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Engine reconciles the local sync queue against the remote store.
type Engine struct {
	queue    domain.SyncQueueRepository
	records  Records
	remote   domain.RemoteStore
	clock    clock.Clock
	log      *errorlog.Log
	metrics  *metrics.EngineMetrics
	recorder domain.DrainRecorder
	cfg      Config

	rearmMu sync.RWMutex
	onRearm RearmFunc

	draining sync.Mutex
}

func NewEngine(
	cfg Config,
	queue domain.SyncQueueRepository,
	recs Records,
	remote domain.RemoteStore,
	clk clock.Clock,
	log *errorlog.Log,
	m *metrics.EngineMetrics,
	recorder domain.DrainRecorder,
) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &Engine{
		queue:    queue,
		records:  recs,
		remote:   remote,
		clock:    clk,
		log:      log,
		metrics:  m,
		recorder: recorder,
		cfg:      cfg,
	}
}

func (e *Engine) OnRearm(fn RearmFunc) {
	e.rearmMu.Lock()
	defer e.rearmMu.Unlock()
	e.onRearm = fn
}

// Backoff returns the wait before the next attempt after retryCount failures.
func (e *Engine) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := e.cfg.BackoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= e.cfg.BackoffCap {
			return e.cfg.BackoffCap
		}
	}
	if d > e.cfg.BackoffCap {
		return e.cfg.BackoffCap
	}
	return d
}

// Enqueue appends a mutation to the durable queue.
func (e *Engine) Enqueue(ctx context.Context, op domain.Operation, table string, recordID int64, remoteID string, payload json.RawMessage) (*domain.SyncQueueItem, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidRecord, op)
	}
	if table == "" {
		return nil, fmt.Errorf("%w: table is required", domain.ErrInvalidRecord)
	}

	item := domain.NewSyncQueueItem(op, table, recordID, payload, e.clock.Now())
	item.RemoteID = remoteID

	if err := e.queue.Append(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to enqueue sync item: %w", err)
	}

	slog.DebugContext(ctx, "sync item enqueued",
		slog.String("item_id", item.ID),
		slog.String("operation", op.String()),
		slog.String("table", table),
		slog.Int64("record_id", recordID),
	)
	return item, nil
}

// EnqueueRecord queues a reminder record mutation with its current field snapshot.
func (e *Engine) EnqueueRecord(ctx context.Context, op domain.Operation, record *domain.ReminderRecord) (*domain.SyncQueueItem, error) {
	fields, err := domain.RecordFields(record)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}

	item := domain.NewSyncQueueItem(op, domain.ReminderTable, record.ID, payload, e.clock.Now())
	item.RemoteID = record.RemoteID
	if record.LastSyncedInstant != nil {
		base := *record.LastSyncedInstant
		item.BaseUpdatedAt = &base
	}

	if err := e.queue.Append(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return item, nil
}

// Drain processes due queue items once. Items of one record are applied strictly in
// enqueue order: a record whose head item is waiting or failed blocks its later items.
func (e *Engine) Drain(ctx context.Context) (domain.DrainRun, error) {
	if !e.draining.TryLock() {
		return domain.DrainRun{}, ErrDrainInProgress
	}
	defer e.draining.Unlock()

	run := domain.DrainRun{
		RunID:     uuid.NewString(),
		StartedAt: e.clock.Now(),
	}

	items, err := e.queue.List(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionReset) {
			e.report(ctx, domain.CategoryFatalLocal, domain.SeverityWarning, "sync.queue", 0, err)
			return run, nil
		}
		return run, fmt.Errorf("failed to list sync queue: %w", err)
	}
	run.Queued = len(items)

	ctx, span := tracing.StartDrainSpan(ctx, run.RunID, len(items))
	defer span.End()

	blocked := make(map[string]bool)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		key := item.OrderKey()
		if blocked[key] || !item.Due(e.clock.Now()) {
			blocked[key] = true
			run.Deferred++
			continue
		}

		run.Processed++
		outcome, conflicted := e.process(ctx, item)
		if conflicted {
			run.Conflicts++
		}

		switch outcome {
		case outcomeSynced:
			run.Succeeded++
		case outcomeRetry:
			run.Retried++
			blocked[key] = true
		case outcomeUnresolvable:
			run.Unresolvable++
			blocked[key] = true
		case outcomeDeadLettered:
			run.DeadLettered++
		}
	}

	run.Duration = e.clock.Now().Sub(run.StartedAt)
	tracing.RecordDrainResult(span, run.Processed, run.Failed(), run.DeadLettered, ctx.Err())

	if e.metrics != nil {
		e.metrics.RecordDrainDuration(ctx, run.Duration, run.Processed)
	}
	if e.recorder != nil && run.Processed > 0 {
		if err := e.recorder.RecordDrain(ctx, run); err != nil {
			slog.WarnContext(ctx, "failed to record drain run",
				slog.String("run_id", run.RunID),
				slog.String("error", err.Error()),
			)
		}
	}

	if run.Processed > 0 {
		slog.InfoContext(ctx, "sync drain completed",
			slog.String("run_id", run.RunID),
			slog.Int("queued", run.Queued),
			slog.Int("succeeded", run.Succeeded),
			slog.Int("retried", run.Retried),
			slog.Int("deferred", run.Deferred),
			slog.Int("unresolvable", run.Unresolvable),
			slog.Int("dead_lettered", run.DeadLettered),
			slog.Int("conflicts", run.Conflicts),
		)
	}
	return run, nil
}

func (e *Engine) process(ctx context.Context, item *domain.SyncQueueItem) (string, bool) {
	ctx, span := tracing.StartSyncItemSpan(ctx, item.ID, item.Operation.String(), item.Table, item.RecordID)
	defer span.End()

	item.Attempts++

	conflicted, err := e.apply(ctx, item)
	tracing.RecordResult(span, err)

	var outcome string
	switch {
	case err == nil:
		outcome = e.complete(ctx, item)
	case errors.Is(err, errUnresolvable):
		outcome = e.unresolvable(ctx, item, err)
	case isPermanent(err):
		e.deadLetter(ctx, item, err.Error(), domain.CategoryValidation, domain.SeverityWarning)
		outcome = outcomeDeadLettered
	default:
		outcome = e.retry(ctx, item, err)
	}

	if e.metrics != nil {
		e.metrics.RecordSyncItem(ctx, item.Operation.String(), outcome)
	}
	return outcome, conflicted
}

func (e *Engine) complete(ctx context.Context, item *domain.SyncQueueItem) string {
	if err := e.queue.Remove(ctx, item.ID); err != nil {
		// the remote write is idempotent, so the item is simply applied again
		slog.WarnContext(ctx, "failed to remove synced item",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}
	return outcomeSynced
}

func (e *Engine) retry(ctx context.Context, item *domain.SyncQueueItem, cause error) string {
	item.RetryCount++
	item.LastError = cause.Error()
	item.Unresolvable = false

	if item.RetryCount >= e.cfg.MaxAttempts {
		e.deadLetter(ctx, item, cause.Error(), domain.CategorySyncTransient, domain.SeverityCritical)
		return outcomeDeadLettered
	}

	next := e.clock.Now().Add(e.Backoff(item.RetryCount))
	item.NextRetryAt = &next
	e.saveItem(ctx, item)

	e.report(ctx, domain.CategorySyncTransient, domain.SeverityWarning, "sync.drain", item.RecordID, cause)
	return outcomeRetry
}

func (e *Engine) unresolvable(ctx context.Context, item *domain.SyncQueueItem, cause error) string {
	item.RetryCount++
	item.LastError = cause.Error()
	item.Unresolvable = true
	item.NextRetryAt = nil

	if item.RetryCount >= e.cfg.MaxAttempts {
		e.deadLetter(ctx, item, cause.Error(), domain.CategorySyncConflict, domain.SeverityCritical)
		return outcomeDeadLettered
	}

	e.saveItem(ctx, item)
	e.report(ctx, domain.CategorySyncConflict, domain.SeverityWarning, "sync.merge", item.RecordID, cause)
	return outcomeUnresolvable
}

func (e *Engine) deadLetter(ctx context.Context, item *domain.SyncQueueItem, reason string, category domain.ErrorCategory, severity domain.Severity) {
	item.NextRetryAt = nil
	letter := &domain.DeadLetter{
		Item:         *item,
		Reason:       reason,
		DeadLetterAt: e.clock.Now(),
	}

	if err := e.queue.AppendDeadLetter(ctx, letter); err != nil {
		slog.ErrorContext(ctx, "failed to dead-letter sync item",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
		e.saveItem(ctx, item)
		return
	}
	if err := e.queue.Remove(ctx, item.ID); err != nil {
		slog.WarnContext(ctx, "failed to remove dead-lettered item",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	if e.metrics != nil {
		e.metrics.RecordDeadLetter(ctx, item.Operation.String())
	}
	e.report(ctx, category, severity, "sync.deadletter", item.RecordID, fmt.Errorf("item %s dead-lettered after %d attempts: %s", item.ID, item.RetryCount, reason))
}

func (e *Engine) saveItem(ctx context.Context, item *domain.SyncQueueItem) {
	if err := e.queue.Update(ctx, item); err != nil {
		slog.WarnContext(ctx, "failed to update sync item",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) report(ctx context.Context, category domain.ErrorCategory, severity domain.Severity, component string, recordID int64, err error) {
	if e.log != nil {
		e.log.Report(ctx, category, severity, component, recordID, err)
		return
	}
	slog.WarnContext(ctx, "sync event",
		slog.String("category", category.String()),
		slog.String("error", err.Error()),
	)
}

func (e *Engine) rearm(ctx context.Context, before, after *domain.ReminderRecord) {
	if after == nil || !after.SchedulingChanged(before) {
		return
	}

	e.rearmMu.RLock()
	fn := e.onRearm
	e.rearmMu.RUnlock()

	if fn != nil {
		fn(ctx, after)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrRemoteRejected) ||
		errors.Is(err, domain.ErrInvalidRecord) ||
		errors.Is(err, domain.ErrInvalidFrequency)
}
