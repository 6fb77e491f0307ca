package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/dispatch"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/recurrence"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/schedtime"
)

var (
	ErrScheduleAdjusted   = errors.New("schedule adjusted")
	ErrNoFutureOccurrence = errors.New("reminder has no future occurrence")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// AdjustmentError carries the instant the caller has to confirm.
type AdjustmentError struct {
	Requested time.Time
	Suggested time.Time
}

func (e *AdjustmentError) Error() string {
	return fmt.Sprintf("%s: %s moved to %s", ErrScheduleAdjusted, e.Requested.Format(time.RFC3339), e.Suggested.Format(time.RFC3339))
}

func (e *AdjustmentError) Unwrap() error {
	return ErrScheduleAdjusted
}

// Scheduler arms and disarms triggers.
type Scheduler interface {
	Arm(ctx context.Context, fireAt time.Time, payload domain.NotificationPayload) error
	Disarm(ctx context.Context, id int64)
}

// Syncer queues record mutations for the remote store.
type Syncer interface {
	EnqueueRecord(ctx context.Context, op domain.Operation, record *domain.ReminderRecord) (*domain.SyncQueueItem, error)
}

// Input is the user-editable part of a reminder.
type Input struct {
	Title               string
	Category            string
	Description         string
	Frequency           domain.FrequencySpec
	TimeOfDay           domain.TimeOfDay
	RepeatLimit         int
	EnableNotifications *bool
	// AcceptAdjustment commits a conflict-adjusted schedule without asking again.
	AcceptAdjustment bool
}

type Service struct {
	store     *records.Store
	scheduler Scheduler
	syncer    Syncer
	validator *schedtime.Validator
	notifier  domain.Notifier
	async     dispatch.Submitter
	log       *errorlog.Log
	clock     clock.Clock

	notifyDrain func()
}

func NewService(
	store *records.Store,
	scheduler Scheduler,
	syncer Syncer,
	validator *schedtime.Validator,
	notifier domain.Notifier,
	async dispatch.Submitter,
	log *errorlog.Log,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if validator == nil {
		validator = schedtime.NewValidator(clk, schedtime.DefaultMinLead)
	}
	if async == nil {
		async = dispatch.Inline{Log: log}
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		syncer:    syncer,
		validator: validator,
		notifier:  notifier,
		async:     async,
		log:       log,
		clock:     clk,
	}
}

// SetDrainNotifier registers the nudge called after every successful write.
func (s *Service) SetDrainNotifier(fn func()) {
	s.notifyDrain = fn
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*domain.ReminderRecord, error) {
	return s.store.List(ctx)
}

func (s *Service) Create(ctx context.Context, in Input) (*domain.ReminderRecord, error) {
	now := s.clock.Now()

	record, err := domain.NewReminderRecord(in.Title, in.Category, in.Description, in.Frequency, in.TimeOfDay, in.RepeatLimit, now)
	if err != nil {
		return nil, err
	}
	if in.EnableNotifications != nil {
		record.EnableNotifications = *in.EnableNotifications
	}

	next, err := s.interactiveNext(in.Frequency, in.TimeOfDay, now, in.AcceptAdjustment)
	if err != nil {
		return nil, err
	}
	record.NextFireInstant = next

	created, err := s.store.Create(ctx, func(id int64) (*domain.ReminderRecord, error) {
		return record, nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "reminder created",
		slog.Int64("record_id", created.ID),
		slog.String("frequency", created.Frequency.Kind.String()),
	)
	s.afterWrite(ctx, nil, created, domain.OperationInsert)
	return created, nil
}

// Update replaces the user-editable fields. A changed frequency or time of day recomputes
// the next fire instant.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*domain.ReminderRecord, error) {
	now := s.clock.Now()
	var before *domain.ReminderRecord

	updated, err := s.store.Mutate(ctx, id, func(r *domain.ReminderRecord) error {
		before = r.Clone()

		scheduleChanged := !r.Frequency.Equal(in.Frequency) || r.TimeOfDay != in.TimeOfDay
		r.Title = in.Title
		r.Category = in.Category
		r.Description = in.Description
		r.Frequency = in.Frequency
		r.TimeOfDay = in.TimeOfDay
		r.RepeatLimit = in.RepeatLimit
		if in.EnableNotifications != nil {
			r.EnableNotifications = *in.EnableNotifications
		}
		if err := r.Validate(); err != nil {
			return err
		}

		if scheduleChanged && r.Status != domain.StatusCompleted {
			next, err := s.interactiveNext(r.Frequency, r.TimeOfDay, now, in.AcceptAdjustment)
			if err != nil {
				return err
			}
			r.NextFireInstant = next
			if r.Status == domain.StatusSnoozed {
				r.Status = domain.StatusActive
			}
		}
		if r.LimitReached() {
			r.Status = domain.StatusCompleted
			r.NextFireInstant = nil
		}

		touch(r, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, before, updated, domain.OperationUpdate)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "reminder deleted",
		slog.Int64("record_id", id),
	)
	s.afterWrite(ctx, deleted, nil, domain.OperationDelete)
	return nil
}

// Complete counts a completion. Reaching the repeat limit completes the reminder;
// otherwise the next occurrence restarts from now.
func (s *Service) Complete(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	now := s.clock.Now()
	var before *domain.ReminderRecord

	updated, err := s.store.Mutate(ctx, id, func(r *domain.ReminderRecord) error {
		before = r.Clone()
		if r.Status == domain.StatusCompleted {
			return fmt.Errorf("%w: reminder %d is already completed", ErrInvalidTransition, id)
		}

		r.CompletionCount++
		completedAt := now
		r.LastCompletedInstant = &completedAt

		// a one-shot reminder is done once completed
		if r.LimitReached() || r.Frequency.Kind == domain.FrequencyOnce {
			r.Status = domain.StatusCompleted
			r.NextFireInstant = nil
			touch(r, now)
			return nil
		}

		next, err := recurrence.ComputeNextAfterCompletion(r.Frequency, r.TimeOfDay, now)
		if err != nil {
			return err
		}
		if next == nil {
			r.Status = domain.StatusCompleted
			r.NextFireInstant = nil
		} else {
			validated := s.validator.Validate(*next)
			r.NextFireInstant = &validated
			if r.Status == domain.StatusSnoozed {
				r.Status = domain.StatusActive
			}
		}
		touch(r, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, before, updated, domain.OperationUpdate)
	return updated, nil
}

func (s *Service) Pause(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	return s.transition(ctx, id, func(r *domain.ReminderRecord, now time.Time) error {
		switch r.Status {
		case domain.StatusPaused:
			return records.ErrNoChange
		case domain.StatusCompleted:
			return fmt.Errorf("%w: cannot pause a completed reminder", ErrInvalidTransition)
		}
		r.Status = domain.StatusPaused
		return nil
	})
}

// Resume reactivates a paused reminder from now.
func (s *Service) Resume(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	return s.transition(ctx, id, func(r *domain.ReminderRecord, now time.Time) error {
		if r.Status != domain.StatusPaused {
			return fmt.Errorf("%w: only paused reminders can be resumed", ErrInvalidTransition)
		}
		next, err := s.backgroundNext(r.Frequency, r.TimeOfDay, now)
		if err != nil {
			return err
		}
		r.Status = domain.StatusActive
		r.NextFireInstant = next
		return nil
	})
}

// Snooze postpones the next fire by d. The regular cadence resumes after the snoozed fire.
func (s *Service) Snooze(ctx context.Context, id int64, d time.Duration) (*domain.ReminderRecord, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: snooze duration must be positive", ErrInvalidTransition)
	}
	return s.transition(ctx, id, func(r *domain.ReminderRecord, now time.Time) error {
		if r.Status != domain.StatusActive && r.Status != domain.StatusSnoozed {
			return fmt.Errorf("%w: cannot snooze a %s reminder", ErrInvalidTransition, r.Status)
		}
		next := s.validator.Validate(now.Add(d))
		r.Status = domain.StatusSnoozed
		r.NextFireInstant = &next
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id int64, fn func(r *domain.ReminderRecord, now time.Time) error) (*domain.ReminderRecord, error) {
	now := s.clock.Now()
	var before *domain.ReminderRecord
	changed := false

	updated, err := s.store.Mutate(ctx, id, func(r *domain.ReminderRecord) error {
		before = r.Clone()
		if err := fn(r, now); err != nil {
			return err
		}
		changed = true
		touch(r, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterWrite(ctx, before, updated, domain.OperationUpdate)
	}
	return updated, nil
}

// interactiveNext computes and floors the first fire instant. A conflict adjustment is
// returned as an AdjustmentError unless the caller accepted it up front.
func (s *Service) interactiveNext(freq domain.FrequencySpec, tod domain.TimeOfDay, now time.Time, accept bool) (*time.Time, error) {
	candidate, err := s.candidate(freq, tod, now)
	if err != nil {
		return nil, err
	}

	adjusted, wasAdjusted := s.validator.AdjustForConflict(candidate)
	if wasAdjusted {
		if !accept {
			return nil, &AdjustmentError{Requested: candidate, Suggested: adjusted}
		}
		slog.Info("schedule adjusted on request",
			slog.Time("requested", candidate),
			slog.Time("adjusted", adjusted),
		)
	}
	return &adjusted, nil
}

// backgroundNext applies the floor silently.
func (s *Service) backgroundNext(freq domain.FrequencySpec, tod domain.TimeOfDay, now time.Time) (*time.Time, error) {
	next, err := recurrence.ComputeNext(freq, tod, now)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}

	validated := s.validator.Validate(*next)
	if !validated.Equal(*next) {
		slog.Info("schedule adjusted to minimum lead time",
			slog.Time("requested", *next),
			slog.Time("adjusted", validated),
		)
	}
	return &validated, nil
}

// candidate is the raw instant the user asked for. A one-shot date that already passed
// today still yields its instant so it can be offered as an adjustment.
func (s *Service) candidate(freq domain.FrequencySpec, tod domain.TimeOfDay, now time.Time) (time.Time, error) {
	next, err := recurrence.ComputeNext(freq, tod, now)
	if err != nil {
		return time.Time{}, err
	}
	if next != nil {
		return *next, nil
	}

	raw := time.Date(freq.Date.Year(), freq.Date.Month(), freq.Date.Day(), tod.Hour, tod.Minute, 0, 0, now.Location())
	y1, m1, d1 := raw.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return raw, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s is in the past", ErrNoFutureOccurrence, raw.Format(time.RFC3339))
}

// afterWrite re-arms and queues the sync without blocking the caller.
func (s *Service) afterWrite(ctx context.Context, before, after *domain.ReminderRecord, op domain.Operation) {
	if after == nil {
		s.scheduler.Disarm(ctx, before.ID)
		s.enqueue(ctx, op, before)
		return
	}

	if after.SchedulingChanged(before) {
		s.rearm(ctx, after)
	}
	s.enqueue(ctx, op, after)
}

// Rearm arms or disarms the record's trigger to match its current state.
func (s *Service) Rearm(ctx context.Context, record *domain.ReminderRecord) {
	s.rearm(ctx, record)
}

func (s *Service) rearm(ctx context.Context, record *domain.ReminderRecord) {
	if !record.Armable() {
		s.scheduler.Disarm(ctx, record.ID)
		return
	}

	fireAt := *record.NextFireInstant
	action := domain.ActionFire
	if record.Status == domain.StatusSnoozed {
		action = domain.ActionSnooze
	}
	payload := record.Payload(action)

	s.async.Submit(dispatch.Task{
		Name:     "reminder.arm",
		RecordID: record.ID,
		Category: domain.CategoryScheduling,
		Severity: domain.SeverityWarning,
		Run: func(ctx context.Context) error {
			return s.scheduler.Arm(ctx, fireAt, payload)
		},
	})
}

// enqueue queues the sync item in the background. A refused update or insert is picked up
// later by the loop through NeedsSync; a refused delete has no record left to find, so it
// is queued inline.
func (s *Service) enqueue(ctx context.Context, op domain.Operation, record *domain.ReminderRecord) {
	if s.syncer != nil {
		snapshot := record.Clone()
		task := dispatch.Task{
			Name:     "sync.enqueue",
			RecordID: record.ID,
			Category: domain.CategorySyncTransient,
			Severity: domain.SeverityWarning,
			Run: func(ctx context.Context) error {
				_, err := s.syncer.EnqueueRecord(ctx, op, snapshot)
				return err
			},
		}
		if !s.async.Submit(task) && op == domain.OperationDelete {
			dispatch.Inline{Ctx: context.WithoutCancel(ctx), Log: s.log}.Submit(task)
		}
	}
	if s.notifyDrain != nil {
		s.notifyDrain()
	}
}

func touch(r *domain.ReminderRecord, now time.Time) {
	r.UpdatedInstant = now
	r.NeedsSync = true
}

// NextFire computes a background next fire instant for r. Used by the startup backfill.
func (s *Service) NextFire(r *domain.ReminderRecord) (*time.Time, error) {
	return s.backgroundNext(r.Frequency, r.TimeOfDay, s.clock.Now())
}
