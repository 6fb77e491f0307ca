package domain

import (
	"context"
	"time"
)

//go:generate mockgen -source=repository.go -destination=repository_mock.go -package=domain

// RecordRepository persists reminder records.
type RecordRepository interface {
	NextID(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (*ReminderRecord, error)
	Save(ctx context.Context, record *ReminderRecord) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*ReminderRecord, error)
}

// SyncQueueRepository persists the sync queue, its dead letters and detected conflicts.
// List returns items in enqueue order.
type SyncQueueRepository interface {
	Append(ctx context.Context, item *SyncQueueItem) error
	List(ctx context.Context) ([]*SyncQueueItem, error)
	Update(ctx context.Context, item *SyncQueueItem) error
	Remove(ctx context.Context, id string) error

	AppendDeadLetter(ctx context.Context, letter *DeadLetter) error
	ListDeadLetters(ctx context.Context) ([]*DeadLetter, error)
	GetDeadLetter(ctx context.Context, id string) (*DeadLetter, error)
	RemoveDeadLetter(ctx context.Context, id string) error

	RecordConflict(ctx context.Context, conflict *SyncConflict) error
	ListConflicts(ctx context.Context, limit int) ([]*SyncConflict, error)
}

type HealthRepository interface {
	Load(ctx context.Context) (*HealthState, error)
	Save(ctx context.Context, state *HealthState) error
}

// ErrorLogRepository mirrors the error log to durable storage, newest first.
type ErrorLogRepository interface {
	Append(ctx context.Context, event ErrorEvent, capacity int) error
	Recent(ctx context.Context, limit int) ([]ErrorEvent, error)
}

// Notifier hands a due reminder to the notification rendering boundary.
type Notifier interface {
	Notify(ctx context.Context, payload NotificationPayload) error
}

// RemoteStore is the row-oriented remote store the sync engine reconciles against.
type RemoteStore interface {
	Fetch(ctx context.Context, table, remoteID string) (*RemoteRow, error)
	Insert(ctx context.Context, table string, fields map[string]any, updatedAt time.Time) (string, error)
	Update(ctx context.Context, table, remoteID string, fields map[string]any, updatedAt time.Time) error
	Delete(ctx context.Context, table, remoteID string) error
}
