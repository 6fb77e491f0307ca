package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/taskqueue"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/metrics"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/tracing"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/dispatch"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
)

const (
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = 500 * time.Millisecond

	// tombstoneTTL bounds how long a disarmed instant rejects late deliveries.
	tombstoneTTL = time.Hour
)

const (
	SourceTimer      = "timer"
	SourcePersistent = "persistent"
)

type State string

const (
	StateUnarmed State = "unarmed"
	StateArmed   State = "armed"
	StateFired   State = "fired"
)

// FireFunc is invoked once per fire. Whether to re-arm is the callback's decision.
type FireFunc func(ctx context.Context, recordID int64, scheduledAt time.Time)

// Fallback gates arming and receives batch failure reports.
type Fallback interface {
	InFallback() bool
	ReportArmBatch(ctx context.Context, total, failed int) bool
}

type Config struct {
	RetryAttempts int
	RetryDelay    time.Duration
}

// Summary is the outcome of an ArmAll sweep.
type Summary struct {
	Total    int
	Armed    int
	Dropped  int
	Failed   int
	Disarmed int
	Skipped  bool
}

type tombstone struct {
	fireAt     time.Time
	disarmedAt time.Time
}

type trigger struct {
	gen      uint64
	fireAt   time.Time
	payload  domain.NotificationPayload
	timer    clock.Timer
	taskName string
	state    State
}

// Scheduler owns the record id to armed trigger mapping. The persistent task queue is
// the durable backing store; the in-process timers are a fast path and cancel cache.
type Scheduler struct {
	mu        sync.Mutex
	triggers  map[int64]*trigger
	lastFired map[int64]time.Time
	disarmed  map[int64]tombstone
	gen       uint64

	queue    taskqueue.TaskQueue
	fallback Fallback
	clock    clock.Clock
	async    dispatch.Submitter
	log      *errorlog.Log
	metrics  *metrics.EngineMetrics
	cfg      Config

	onFire  FireFunc
	baseCtx context.Context
}

// NewScheduler creates a scheduler. queue may be nil for timer-only operation.
func NewScheduler(
	cfg Config,
	queue taskqueue.TaskQueue,
	fallback Fallback,
	clk clock.Clock,
	async dispatch.Submitter,
	log *errorlog.Log,
	m *metrics.EngineMetrics,
) *Scheduler {
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	} else if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if clk == nil {
		clk = clock.Real()
	}
	if async == nil {
		async = dispatch.Inline{Log: log}
	}

	return &Scheduler{
		triggers:  make(map[int64]*trigger),
		lastFired: make(map[int64]time.Time),
		disarmed:  make(map[int64]tombstone),
		queue:     queue,
		fallback:  fallback,
		clock:     clk,
		async:     async,
		log:       log,
		metrics:   m,
		cfg:       cfg,
		baseCtx:   context.Background(),
	}
}

// OnFire registers the fire callback. ctx is used for timer-driven fires.
func (s *Scheduler) OnFire(ctx context.Context, fn FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
	s.baseCtx = ctx
}

// Arm schedules a fire for the payload's record at fireAt, replacing any existing trigger.
// A past fireAt is logged and dropped. It returns an error only when the persistent
// registration failed after retries, in which case the record is left unarmed.
func (s *Scheduler) Arm(ctx context.Context, fireAt time.Time, payload domain.NotificationPayload) error {
	_, err := s.arm(ctx, fireAt, payload, false)
	return err
}

func (s *Scheduler) arm(ctx context.Context, fireAt time.Time, payload domain.NotificationPayload, refresh bool) (armOutcome, error) {
	id := payload.RecordID
	payload.ScheduledInstant = fireAt

	if s.fallback != nil && s.fallback.InFallback() {
		slog.InfoContext(ctx, "fallback mode, arm skipped",
			slog.Int64("record_id", id),
		)
		s.recordArm(ctx, outcomeSkipped)
		return outcomeSkipped, nil
	}

	now := s.clock.Now()
	if !fireAt.After(now) {
		s.Disarm(ctx, id)
		slog.WarnContext(ctx, "dropping trigger in the past",
			slog.Int64("record_id", id),
			slog.Time("fire_at", fireAt),
		)
		s.recordArm(ctx, outcomeDropped)
		return outcomeDropped, nil
	}

	s.mu.Lock()
	if existing, ok := s.triggers[id]; ok && existing.state == StateArmed && existing.fireAt.Equal(fireAt) && existing.taskName != "" {
		existing.payload = payload
		s.mu.Unlock()
		if refresh {
			return s.refresh(ctx, payload)
		}
		s.recordArm(ctx, outcomeUnchanged)
		return outcomeUnchanged, nil
	}

	stale := s.removeLocked(id)
	s.gen++
	t := &trigger{
		gen:     s.gen,
		fireAt:  fireAt,
		payload: payload,
		state:   StateArmed,
	}
	s.triggers[id] = t
	delete(s.disarmed, id)
	s.mu.Unlock()

	s.deleteTaskAsync(id, stale)

	name, err := s.register(ctx, payload)

	s.mu.Lock()
	if current := s.triggers[id]; current != t {
		s.mu.Unlock()
		// disarmed or replaced while registering
		if err == nil {
			s.deleteTaskAsync(id, name)
		}
		return outcomeSuperseded, nil
	}
	if err != nil {
		delete(s.triggers, id)
		s.mu.Unlock()

		s.recordArm(ctx, outcomeFailed)
		if s.log != nil {
			s.log.Report(ctx, domain.CategoryScheduling, domain.SeverityWarning, "trigger.arm", id, err)
		}
		return outcomeFailed, err
	}

	t.taskName = name
	gen := t.gen
	t.timer = s.clock.AfterFunc(fireAt.Sub(s.clock.Now()), func() {
		s.fireFromTimer(id, gen)
	})
	s.mu.Unlock()

	slog.DebugContext(ctx, "trigger armed",
		slog.Int64("record_id", id),
		slog.Time("fire_at", fireAt),
		slog.String("task_name", name),
	)
	s.recordArm(ctx, outcomeArmed)
	return outcomeArmed, nil
}

// refresh re-registers the persistent task of an unchanged trigger. Registration is
// idempotent per task name, so this only recreates tasks cancelled externally.
func (s *Scheduler) refresh(ctx context.Context, payload domain.NotificationPayload) (armOutcome, error) {
	if _, err := s.register(ctx, payload); err != nil {
		if s.log != nil {
			s.log.Report(ctx, domain.CategoryScheduling, domain.SeverityWarning, "trigger.refresh", payload.RecordID, err)
		}
		s.recordArm(ctx, outcomeFailed)
		return outcomeFailed, err
	}
	s.recordArm(ctx, outcomeUnchanged)
	return outcomeUnchanged, nil
}

// register creates the persistent task, retrying with a fixed delay.
func (s *Scheduler) register(ctx context.Context, payload domain.NotificationPayload) (string, error) {
	task := taskqueue.NewTriggerTask(payload)
	if s.queue == nil {
		return task.Name, nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			slog.DebugContext(ctx, "retrying trigger arm",
				slog.Int64("record_id", payload.RecordID),
				slog.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		if _, err := s.queue.RegisterTrigger(ctx, task); err != nil {
			lastErr = err
			continue
		}
		return task.Name, nil
	}

	return "", fmt.Errorf("failed to arm record %d after %d attempts: %w", payload.RecordID, s.cfg.RetryAttempts+1, lastErr)
}

// canaryLead keeps a canary task far from firing before it is deleted.
const canaryLead = 24 * time.Hour

// Canary registers a throwaway task once and deletes it. A nil result means arming works.
func (s *Scheduler) Canary(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}

	now := s.clock.Now()
	task := &taskqueue.TriggerTask{
		Name:       fmt.Sprintf("canary-%d", now.UnixNano()),
		ScheduleAt: now.Add(canaryLead),
		Payload:    domain.NotificationPayload{Action: domain.ActionFire, ScheduledInstant: now.Add(canaryLead)},
	}
	if _, err := s.queue.RegisterTrigger(ctx, task); err != nil {
		return fmt.Errorf("canary arm failed: %w", err)
	}
	if err := s.queue.DeleteTask(ctx, task.Name); err != nil {
		slog.WarnContext(ctx, "failed to delete canary task",
			slog.String("task_name", task.Name),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Disarm cancels the pending trigger for id. The in-memory state changes before Disarm
// returns; the persistent task is removed asynchronously.
func (s *Scheduler) Disarm(ctx context.Context, id int64) {
	s.mu.Lock()
	if t, ok := s.triggers[id]; ok && t.state == StateArmed {
		s.tombstoneLocked(id, t.fireAt)
	}
	name := s.removeLocked(id)
	s.mu.Unlock()

	if name != "" {
		slog.DebugContext(ctx, "trigger disarmed",
			slog.Int64("record_id", id),
		)
	}
	s.deleteTaskAsync(id, name)
}

func (s *Scheduler) removeLocked(id int64) string {
	t, ok := s.triggers[id]
	if !ok {
		return ""
	}
	delete(s.triggers, id)
	if t.timer != nil {
		t.timer.Stop()
	}
	return t.taskName
}

// tombstoneLocked remembers a disarmed instant until its persistent task is surely gone.
func (s *Scheduler) tombstoneLocked(id int64, fireAt time.Time) {
	now := s.clock.Now()
	for rid, tomb := range s.disarmed {
		if now.Sub(tomb.disarmedAt) > tombstoneTTL {
			delete(s.disarmed, rid)
		}
	}
	s.disarmed[id] = tombstone{fireAt: fireAt, disarmedAt: now}
}

func (s *Scheduler) disarmedLocked(id int64, scheduledAt time.Time) bool {
	tomb, ok := s.disarmed[id]
	if !ok {
		return false
	}
	if s.clock.Now().Sub(tomb.disarmedAt) > tombstoneTTL {
		delete(s.disarmed, id)
		return false
	}
	return !scheduledAt.After(tomb.fireAt)
}

func (s *Scheduler) deleteTaskAsync(id int64, name string) {
	if name == "" || s.queue == nil {
		return
	}
	s.async.Submit(dispatch.Task{
		Name:     "trigger.delete_task",
		RecordID: id,
		Category: domain.CategoryScheduling,
		Severity: domain.SeverityInfo,
		Run: func(ctx context.Context) error {
			return s.queue.DeleteTask(ctx, name)
		},
	})
}

// ArmAll arms every armable record and disarms triggers of records that no longer are.
// Individual failures never abort the sweep.
func (s *Scheduler) ArmAll(ctx context.Context, records []*domain.ReminderRecord) Summary {
	ctx, span := tracing.StartArmSweepSpan(ctx, len(records))
	defer span.End()

	if s.fallback != nil && s.fallback.InFallback() {
		slog.InfoContext(ctx, "fallback mode, arm sweep skipped",
			slog.Int("records", len(records)),
		)
		tracing.RecordArmSweepResult(span, 0, 0, 0)
		return Summary{Skipped: true}
	}

	var summary Summary
	for _, r := range records {
		if !r.Armable() {
			if s.State(r.ID) == StateArmed {
				s.Disarm(ctx, r.ID)
				summary.Disarmed++
			}
			continue
		}

		summary.Total++
		outcome, err := s.arm(ctx, *r.NextFireInstant, r.Payload(domain.ActionFire), true)
		switch {
		case err != nil:
			summary.Failed++
			slog.WarnContext(ctx, "arm failed during sweep",
				slog.Int64("record_id", r.ID),
				slog.String("error", err.Error()),
			)
		case outcome == outcomeDropped:
			summary.Dropped++
		default:
			summary.Armed++
		}
	}

	slog.InfoContext(ctx, "arm sweep completed",
		slog.Int("total", summary.Total),
		slog.Int("armed", summary.Armed),
		slog.Int("dropped", summary.Dropped),
		slog.Int("failed", summary.Failed),
		slog.Int("disarmed", summary.Disarmed),
	)
	tracing.RecordArmSweepResult(span, summary.Armed, summary.Dropped, summary.Failed)

	if s.fallback != nil {
		s.fallback.ReportArmBatch(ctx, summary.Total, summary.Failed)
	}
	return summary
}

// ErrDuplicateFire is returned by Deliver when the fire already happened.
var ErrDuplicateFire = errors.New("trigger already fired")

// ErrStaleFire is returned by Deliver when the record is armed for another instant
// or the instant was disarmed.
var ErrStaleFire = errors.New("trigger superseded")

// Deliver handles a fire coming from the persistent task queue. Each (record, instant)
// fires at most once across the timer and persistent paths.
func (s *Scheduler) Deliver(ctx context.Context, recordID int64, scheduledAt time.Time) error {
	s.mu.Lock()
	if last, ok := s.lastFired[recordID]; ok && last.Equal(scheduledAt) {
		s.mu.Unlock()
		return ErrDuplicateFire
	}

	t, ok := s.triggers[recordID]
	if ok && !t.fireAt.Equal(scheduledAt) {
		s.mu.Unlock()
		return ErrStaleFire
	}
	if ok && t.state == StateFired {
		s.mu.Unlock()
		return ErrDuplicateFire
	}
	if ok && t.timer != nil {
		t.timer.Stop()
	}
	if !ok && s.disarmedLocked(recordID, scheduledAt) {
		s.mu.Unlock()
		return ErrStaleFire
	}
	if !ok {
		t = &trigger{fireAt: scheduledAt, state: StateArmed}
		s.triggers[recordID] = t
	}
	s.mu.Unlock()

	s.fire(ctx, recordID, t, SourcePersistent)
	return nil
}

func (s *Scheduler) fireFromTimer(id int64, gen uint64) {
	s.mu.Lock()
	t, ok := s.triggers[id]
	ctx := s.baseCtx
	s.mu.Unlock()

	// disarm wins when it ran before the callback started
	if !ok || t.gen != gen {
		return
	}

	s.fire(ctx, id, t, SourceTimer)
	s.deleteTaskAsync(id, t.taskName)
}

func (s *Scheduler) fire(ctx context.Context, id int64, t *trigger, source string) {
	s.mu.Lock()
	if s.triggers[id] != t || t.state != StateArmed {
		s.mu.Unlock()
		return
	}
	t.state = StateFired
	s.lastFired[id] = t.fireAt
	fn := s.onFire
	s.mu.Unlock()

	slog.InfoContext(ctx, "trigger fired",
		slog.Int64("record_id", id),
		slog.Time("scheduled_at", t.fireAt),
		slog.String("source", source),
	)
	if s.metrics != nil {
		s.metrics.RecordFire(ctx, source)
	}

	if fn != nil {
		fn(ctx, id, t.fireAt)
	}

	s.mu.Lock()
	if s.triggers[id] == t {
		delete(s.triggers, id)
	}
	s.mu.Unlock()
}

// State reports the trigger state of id.
func (s *Scheduler) State(id int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok {
		return StateUnarmed
	}
	return t.state
}

// FireAt returns the instant id is armed for.
func (s *Scheduler) FireAt(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok || t.state != StateArmed {
		return time.Time{}, false
	}
	return t.fireAt, true
}

// ArmedCount returns the number of armed triggers.
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.triggers {
		if t.state == StateArmed {
			n++
		}
	}
	return n
}

type armOutcome string

const (
	outcomeArmed      armOutcome = "armed"
	outcomeUnchanged  armOutcome = "unchanged"
	outcomeDropped    armOutcome = "dropped"
	outcomeSkipped    armOutcome = "skipped"
	outcomeFailed     armOutcome = "failed"
	outcomeSuperseded armOutcome = "superseded"
)

func (s *Scheduler) recordArm(ctx context.Context, outcome armOutcome) {
	if s.metrics != nil {
		s.metrics.RecordArm(ctx, string(outcome))
	}
}
