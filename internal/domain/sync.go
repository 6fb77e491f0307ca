package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of mutation carried by a sync queue item.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

func (o Operation) String() string {
	return string(o)
}

func (o Operation) Valid() bool {
	return o == OperationInsert || o == OperationUpdate || o == OperationDelete
}

// SyncQueueItem is one pending mutation waiting to be applied to the remote store.
type SyncQueueItem struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	Table     string          `json:"table"`
	RecordID  int64           `json:"recordId"`
	RemoteID  string          `json:"remoteId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	// BaseUpdatedAt is the local updatedAt the mutation was made against.
	BaseUpdatedAt *time.Time `json:"baseUpdatedAt,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueuedAt"`
	RetryCount    int        `json:"retryCount"`
	// Attempts counts every failed or unresolvable pass, transient or not.
	Attempts     int        `json:"attempts"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Unresolvable bool       `json:"unresolvable,omitempty"`
}

func NewSyncQueueItem(op Operation, table string, recordID int64, payload json.RawMessage, now time.Time) *SyncQueueItem {
	return &SyncQueueItem{
		ID:         uuid.NewString(),
		Operation:  op,
		Table:      table,
		RecordID:   recordID,
		Payload:    payload,
		EnqueuedAt: now,
	}
}

// Due reports whether the item may be attempted at now.
func (i *SyncQueueItem) Due(now time.Time) bool {
	return i.NextRetryAt == nil || !now.Before(*i.NextRetryAt)
}

// OrderKey groups items that must drain in FIFO order.
func (i *SyncQueueItem) OrderKey() string {
	return i.Table + ":" + formatInt(i.RecordID)
}

// DeadLetter is a queue item removed from active retry, kept for manual review.
type DeadLetter struct {
	Item         SyncQueueItem `json:"item"`
	Reason       string        `json:"reason"`
	DeadLetterAt time.Time     `json:"deadLetterAt"`
}

// SyncConflict captures a detected divergence between local and remote state.
type SyncConflict struct {
	ID             string         `json:"id"`
	ItemID         string         `json:"itemId"`
	Table          string         `json:"table"`
	RecordID       int64          `json:"recordId"`
	RemoteID       string         `json:"remoteId"`
	Operation      Operation      `json:"operation"`
	DifferingKeys  []string       `json:"differingKeys,omitempty"`
	RemoteNewer    bool           `json:"remoteNewer"`
	RemoteSnapshot map[string]any `json:"remoteSnapshot"`
	RemoteUpdated  *time.Time     `json:"remoteUpdatedAt,omitempty"`
	Resolution     string         `json:"resolution"`
	DetectedAt     time.Time      `json:"detectedAt"`
}

// RemoteRow is a row of a remote table addressed by RemoteID.
type RemoteRow struct {
	RemoteID  string
	Fields    map[string]any
	UpdatedAt *time.Time
}
