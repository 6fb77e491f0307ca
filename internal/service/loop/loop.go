package loop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/syncengine"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

const (
	DefaultDrainInterval = time.Minute
	DefaultSweepInterval = 30 * time.Minute
)

type Drainer interface {
	Drain(ctx context.Context) (domain.DrainRun, error)
}

type Sweeper interface {
	ArmAll(ctx context.Context, records []*domain.ReminderRecord) trigger.Summary
}

type Records interface {
	List(ctx context.Context) ([]*domain.ReminderRecord, error)
	BackfillNextFire(ctx context.Context, compute records.NextFireFunc) ([]*domain.ReminderRecord, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) fallback.CheckResult
}

type Syncer interface {
	EnqueueRecord(ctx context.Context, op domain.Operation, record *domain.ReminderRecord) (*domain.SyncQueueItem, error)
	Pending(ctx context.Context) ([]*domain.SyncQueueItem, error)
	DeadLetters(ctx context.Context) ([]*domain.DeadLetter, error)
}

type Config struct {
	DrainInterval time.Duration
	SweepInterval time.Duration
}

// Loop is the single background loop. It drains the sync queue on a ticker and runs the
// self-healing arm sweep; both can be requested early through non-blocking nudges.
type Loop struct {
	cfg      Config
	drainer  Drainer
	sweeper  Sweeper
	records  Records
	health   HealthChecker
	syncer   Syncer
	nextFire records.NextFireFunc

	drainCh chan struct{}
	wakeCh  chan struct{}
}

func New(cfg Config, drainer Drainer, sweeper Sweeper, recs Records, health HealthChecker, syncer Syncer, nextFire records.NextFireFunc) *Loop {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Loop{
		cfg:      cfg,
		drainer:  drainer,
		sweeper:  sweeper,
		records:  recs,
		health:   health,
		syncer:   syncer,
		nextFire: nextFire,
		drainCh:  make(chan struct{}, 1),
		wakeCh:   make(chan struct{}, 1),
	}
}

// NotifyDrain requests a drain. Non-blocking if one is already pending.
func (l *Loop) NotifyDrain() {
	select {
	case l.drainCh <- struct{}{}:
	default:
	}
}

// NotifyWake requests a sweep followed by a drain, as after a wake from background or a
// return to Normal mode.
func (l *Loop) NotifyWake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// Run executes the startup sequence and then loops until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	slog.InfoContext(ctx, "background loop started",
		slog.Duration("drain_interval", l.cfg.DrainInterval),
		slog.Duration("sweep_interval", l.cfg.SweepInterval),
	)

	l.Startup(ctx)

	drainTicker := time.NewTicker(l.cfg.DrainInterval)
	defer drainTicker.Stop()
	sweepTicker := time.NewTicker(l.cfg.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("background loop stopped")
			return
		case <-drainTicker.C:
			l.DrainOnce(ctx)
		case <-l.drainCh:
			l.DrainOnce(ctx)
		case <-sweepTicker.C:
			l.Sweep(ctx)
		case <-l.wakeCh:
			l.Sweep(ctx)
			l.DrainOnce(ctx)
		}
	}
}

// Startup re-evaluates fallback health, backfills missing next fire instants, arms every
// record and drains once.
func (l *Loop) Startup(ctx context.Context) {
	if l.health != nil {
		result := l.health.HealthCheck(ctx)
		slog.InfoContext(ctx, "startup health check",
			slog.String("mode", string(result.Mode)),
			slog.Bool("healthy", result.Healthy),
		)
	}

	l.backfill(ctx)
	l.Sweep(ctx)
	l.DrainOnce(ctx)
}

func (l *Loop) backfill(ctx context.Context) {
	if l.nextFire == nil {
		return
	}

	changed, err := l.records.BackfillNextFire(ctx, l.nextFire)
	if err != nil {
		slog.WarnContext(ctx, "next fire backfill failed",
			slog.String("error", err.Error()),
		)
	}
	if len(changed) == 0 {
		return
	}

	slog.InfoContext(ctx, "next fire instants backfilled",
		slog.Int("records", len(changed)),
	)
	if l.syncer == nil {
		return
	}
	for _, r := range changed {
		if _, err := l.syncer.EnqueueRecord(ctx, domain.OperationUpdate, r); err != nil {
			slog.WarnContext(ctx, "failed to queue backfilled record",
				slog.Int64("record_id", r.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Sweep queues unsynced records that lost their queue item and re-arms every record.
func (l *Loop) Sweep(ctx context.Context) trigger.Summary {
	all, err := l.records.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "arm sweep could not list records",
			slog.String("error", err.Error()),
		)
		return trigger.Summary{}
	}
	l.reconcile(ctx, all)
	return l.sweeper.ArmAll(ctx, all)
}

// reconcile enqueues records marked as needing sync that have neither a queued item nor
// a dead letter. A write whose enqueue was dropped or interrupted is recovered here.
func (l *Loop) reconcile(ctx context.Context, all []*domain.ReminderRecord) {
	if l.syncer == nil {
		return
	}

	var unsynced []*domain.ReminderRecord
	for _, r := range all {
		if r.NeedsSync {
			unsynced = append(unsynced, r)
		}
	}
	if len(unsynced) == 0 {
		return
	}

	pending, err := l.syncer.Pending(ctx)
	if err != nil {
		slog.WarnContext(ctx, "sync reconcile could not list queue",
			slog.String("error", err.Error()),
		)
		return
	}
	letters, err := l.syncer.DeadLetters(ctx)
	if err != nil {
		slog.WarnContext(ctx, "sync reconcile could not list dead letters",
			slog.String("error", err.Error()),
		)
		return
	}

	tracked := make(map[int64]struct{}, len(pending)+len(letters))
	for _, item := range pending {
		tracked[item.RecordID] = struct{}{}
	}
	for _, letter := range letters {
		tracked[letter.Item.RecordID] = struct{}{}
	}

	queued := 0
	for _, r := range unsynced {
		if _, ok := tracked[r.ID]; ok {
			continue
		}
		op := domain.OperationUpdate
		if r.RemoteID == "" {
			op = domain.OperationInsert
		}
		if _, err := l.syncer.EnqueueRecord(ctx, op, r); err != nil {
			slog.WarnContext(ctx, "failed to queue unsynced record",
				slog.Int64("record_id", r.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		queued++
	}

	if queued > 0 {
		slog.InfoContext(ctx, "unsynced records queued",
			slog.Int("records", queued),
		)
	}
}

// DrainOnce runs a single drain. Failures are logged, never returned.
func (l *Loop) DrainOnce(ctx context.Context) {
	if l.drainer == nil {
		return
	}

	if _, err := l.drainer.Drain(ctx); err != nil {
		if errors.Is(err, syncengine.ErrDrainInProgress) {
			slog.DebugContext(ctx, "drain already running")
			return
		}
		slog.WarnContext(ctx, "drain failed",
			slog.String("error", err.Error()),
		)
	}
}
