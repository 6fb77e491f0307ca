package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/recurrence"
)

// Store keeps every remote table as rows of one remote_rows table keyed by
// (table_name, remote_id). A row inserted with a local id is upserted on it, so an
// insert retried after a lost response does not duplicate the row.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects and verifies the pool.
func Open(ctx context.Context, uri string) (*Store, error) {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

var _ domain.RemoteStore = (*Store)(nil)

func (s *Store) Fetch(ctx context.Context, table, remoteID string) (*domain.RemoteRow, error) {
	var (
		fields    map[string]any
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT fields, updated_at FROM remote_rows WHERE table_name = $1 AND remote_id = $2`,
		table, remoteID,
	).Scan(&fields, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRemoteNotFound
		}
		return nil, classify(err)
	}

	updated := updatedAt.UTC()
	return &domain.RemoteRow{
		RemoteID:  remoteID,
		Fields:    fields,
		UpdatedAt: &updated,
	}, nil
}

func (s *Store) Insert(ctx context.Context, table string, fields map[string]any, updatedAt time.Time) (string, error) {
	rule := recurrenceRule(table, fields)
	localID, hasLocal := localIDOf(fields)

	var remoteID string
	var err error
	if hasLocal {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO remote_rows (table_name, remote_id, local_id, fields, recurrence_rule, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (table_name, local_id) WHERE local_id IS NOT NULL
			 DO UPDATE SET fields = EXCLUDED.fields, recurrence_rule = EXCLUDED.recurrence_rule, updated_at = EXCLUDED.updated_at
			 RETURNING remote_id`,
			table, uuid.NewString(), localID, fields, rule, updatedAt,
		).Scan(&remoteID)
	} else {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO remote_rows (table_name, remote_id, fields, recurrence_rule, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING remote_id`,
			table, uuid.NewString(), fields, rule, updatedAt,
		).Scan(&remoteID)
	}
	if err != nil {
		return "", classify(err)
	}

	slog.DebugContext(ctx, "remote row inserted",
		slog.String("table", table),
		slog.String("remote_id", remoteID),
	)
	return remoteID, nil
}

func (s *Store) Update(ctx context.Context, table, remoteID string, fields map[string]any, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE remote_rows SET fields = $3, recurrence_rule = $4, updated_at = $5
		 WHERE table_name = $1 AND remote_id = $2`,
		table, remoteID, fields, recurrenceRule(table, fields), updatedAt,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRemoteNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, remoteID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM remote_rows WHERE table_name = $1 AND remote_id = $2`,
		table, remoteID,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRemoteNotFound
	}
	return nil
}

// classify marks data and integrity violations as rejections; everything else stays
// transient.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "22", "23":
			return fmt.Errorf("%w: %s", domain.ErrRemoteRejected, pgErr.Message)
		}
	}
	return err
}

func localIDOf(fields map[string]any) (int64, bool) {
	switch v := fields[domain.FieldLocalID].(type) {
	case float64:
		return int64(v), v > 0
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	default:
		return 0, false
	}
}

// recurrenceRule renders the RRULE of a reminders row. Rows it cannot render get NULL.
func recurrenceRule(table string, fields map[string]any) *string {
	if table != domain.ReminderTable {
		return nil
	}

	placeholder := &domain.ReminderRecord{
		Title:     "-",
		Status:    domain.StatusActive,
		Frequency: domain.Daily(),
	}
	record, err := domain.ApplyFields(placeholder, fields)
	if err != nil {
		return nil
	}

	rule, err := recurrence.RuleString(record.Frequency, record.TimeOfDay, record.CreatedInstant)
	if err != nil {
		return nil
	}
	return &rule
}
