package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/recurrence"
)

// OnFire is the trigger callback. It hands the payload to the notifier and advances the
// record to its following occurrence, which re-arms it.
func (s *Service) OnFire(ctx context.Context, id int64, scheduledAt time.Time) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			slog.WarnContext(ctx, "fired reminder no longer exists",
				slog.Int64("record_id", id),
			)
			return
		}
		s.report(ctx, domain.CategoryScheduling, id, err)
		return
	}

	if record.Status != domain.StatusActive && record.Status != domain.StatusSnoozed {
		slog.InfoContext(ctx, "ignoring fire for inactive reminder",
			slog.Int64("record_id", id),
			slog.String("status", record.Status.String()),
		)
		return
	}

	if record.NextFireInstant == nil || !record.NextFireInstant.Equal(scheduledAt) {
		slog.InfoContext(ctx, "ignoring stale fire",
			slog.Int64("record_id", id),
			slog.Time("scheduled_at", scheduledAt),
		)
		return
	}

	if record.EnableNotifications && s.notifier != nil {
		action := domain.ActionFire
		if record.Status == domain.StatusSnoozed {
			action = domain.ActionSnooze
		}
		payload := record.Payload(action)
		payload.ScheduledInstant = scheduledAt

		if err := s.notifier.Notify(ctx, payload); err != nil {
			s.report(ctx, domain.CategoryScheduling, id, err)
		}
	}

	s.advance(ctx, id, scheduledAt)
}

func (s *Service) advance(ctx context.Context, id int64, scheduledAt time.Time) {
	now := s.clock.Now()
	var before *domain.ReminderRecord

	updated, err := s.store.Mutate(ctx, id, func(r *domain.ReminderRecord) error {
		before = r.Clone()
		// edited since it was armed
		if r.NextFireInstant == nil || !r.NextFireInstant.Equal(scheduledAt) {
			return records.ErrNoChange
		}

		next, err := s.followingOccurrence(r, scheduledAt, now)
		if err != nil {
			return err
		}
		r.NextFireInstant = next
		if r.Status == domain.StatusSnoozed {
			r.Status = domain.StatusActive
		}
		touch(r, now)
		return nil
	})
	if err != nil {
		s.report(ctx, domain.CategoryScheduling, id, err)
		return
	}
	if !updated.SchedulingChanged(before) {
		return
	}

	slog.InfoContext(ctx, "reminder advanced",
		slog.Int64("record_id", id),
		slog.Any("next_fire", updated.NextFireInstant),
	)
	s.afterWrite(ctx, before, updated, domain.OperationUpdate)
}

// followingOccurrence derives the next fire from the fire instant so the cadence does not
// drift. If that is already behind now, it restarts from now.
func (s *Service) followingOccurrence(r *domain.ReminderRecord, firedAt, now time.Time) (*time.Time, error) {
	if r.Frequency.Kind == domain.FrequencyOnce {
		return nil, nil
	}

	next, err := recurrence.ComputeNext(r.Frequency, r.TimeOfDay, firedAt)
	if err != nil {
		return nil, err
	}
	if next != nil && !next.After(now) {
		next, err = recurrence.ComputeNext(r.Frequency, r.TimeOfDay, now)
		if err != nil {
			return nil, err
		}
	}
	if next == nil {
		return nil, nil
	}

	validated := s.validator.Validate(*next)
	return &validated, nil
}

func (s *Service) report(ctx context.Context, category domain.ErrorCategory, id int64, err error) {
	if s.log != nil {
		s.log.Report(ctx, category, domain.SeverityWarning, "reminder", id, err)
		return
	}
	slog.WarnContext(ctx, "reminder operation failed",
		slog.Int64("record_id", id),
		slog.String("error", err.Error()),
	)
}
