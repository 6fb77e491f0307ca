package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
)

// ErrNoChange makes Mutate skip the write.
var ErrNoChange = errors.New("no change")

// MutateFunc edits a private copy of the record.
type MutateFunc func(r *domain.ReminderRecord) error

// NextFireFunc computes a missing next fire instant during backfill.
type NextFireFunc func(r *domain.ReminderRecord) (*time.Time, error)

// Store is the single entry point for reminder record persistence. Writes to one record
// are serialized; different records never block each other.
type Store struct {
	repo  domain.RecordRepository
	log   *errorlog.Log
	clock clock.Clock
	locks *keyedMutex
}

func NewStore(repo domain.RecordRepository, log *errorlog.Log, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		repo:  repo,
		log:   log,
		clock: clk,
		locks: newKeyedMutex(),
	}
}

// Create allocates an id, lets build fill the record and persists it.
func (s *Store) Create(ctx context.Context, build func(id int64) (*domain.ReminderRecord, error)) (*domain.ReminderRecord, error) {
	id, err := s.repo.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate record id: %w", err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	record, err := build(id)
	if err != nil {
		return nil, err
	}
	record.ID = id
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}
	return record.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.handleReset(ctx, err, id)
	}
	return record, nil
}

// List returns every record ordered by id. A corrupt collection yields an empty list.
func (s *Store) List(ctx context.Context) ([]*domain.ReminderRecord, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionReset) {
			s.reportReset(ctx, err, 0)
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// Mutate loads the record, applies fn to a copy and saves the result under the record lock.
// fn may return ErrNoChange to skip the write; the current record is returned then.
func (s *Store) Mutate(ctx context.Context, id int64, fn MutateFunc) (*domain.ReminderRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.handleReset(ctx, err, id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current, nil
		}
		return nil, err
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}
	return next.Clone(), nil
}

// Delete removes the record and returns its last state.
func (s *Store) Delete(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.handleReset(ctx, err, id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}
	return current, nil
}

// BackfillNextFire fills nextFireInstant for records that predate it. Completed records
// are left alone. It returns the records it changed.
func (s *Store) BackfillNextFire(ctx context.Context, compute NextFireFunc) ([]*domain.ReminderRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var changed []*domain.ReminderRecord
	for _, r := range all {
		if r.NextFireInstant != nil || r.Status == domain.StatusCompleted {
			continue
		}

		updated, err := s.Mutate(ctx, r.ID, func(rec *domain.ReminderRecord) error {
			if rec.NextFireInstant != nil || rec.Status == domain.StatusCompleted {
				return ErrNoChange
			}
			next, err := compute(rec)
			if err != nil {
				return err
			}
			if next == nil {
				return ErrNoChange
			}
			rec.NextFireInstant = next
			return nil
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to backfill next fire instant",
				slog.Int64("record_id", r.ID),
				slog.String("error", err.Error()),
			)
			if s.log != nil && domain.IsValidation(err) {
				s.log.Report(ctx, domain.CategoryValidation, domain.SeverityWarning, "records.backfill", r.ID, err)
			}
			continue
		}
		if updated.NextFireInstant != nil && r.NextFireInstant == nil {
			changed = append(changed, updated)
		}
	}

	if len(changed) > 0 {
		slog.InfoContext(ctx, "backfilled next fire instants",
			slog.Int("count", len(changed)),
		)
	}
	return changed, nil
}

// handleReset turns a collection reset into a not-found after logging it.
func (s *Store) handleReset(ctx context.Context, err error, id int64) error {
	if errors.Is(err, domain.ErrCollectionReset) {
		s.reportReset(ctx, err, id)
		return domain.ErrRecordNotFound
	}
	return err
}

func (s *Store) reportReset(ctx context.Context, err error, id int64) {
	if s.log != nil {
		s.log.Report(ctx, domain.CategoryFatalLocal, domain.SeverityWarning, "records", id, err)
		return
	}
	slog.ErrorContext(ctx, "record collection reset",
		slog.String("error", err.Error()),
	)
}
