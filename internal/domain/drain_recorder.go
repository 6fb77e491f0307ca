package domain

import (
	"context"
	"time"
)

// DrainRun summarizes one pass over the sync queue.
type DrainRun struct {
	RunID        string        `json:"runId"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"durationNs"`
	Queued       int           `json:"queued"`
	Processed    int           `json:"processed"`
	Succeeded    int           `json:"succeeded"`
	Retried      int           `json:"retried"`
	Deferred     int           `json:"deferred"`
	Unresolvable int           `json:"unresolvable"`
	DeadLettered int           `json:"deadLettered"`
	Conflicts    int           `json:"conflicts"`
}

// Failed counts processed items that did not reach the remote store.
func (r DrainRun) Failed() int {
	return r.Retried + r.Unresolvable + r.DeadLettered
}

// DrainRecorder ships drain summaries to an analytics sink.
type DrainRecorder interface {
	RecordDrain(ctx context.Context, run DrainRun) error
	Flush(ctx context.Context) error
	Close() error
}
