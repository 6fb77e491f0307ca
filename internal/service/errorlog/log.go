package errorlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

const DefaultCapacity = 500

// Listener observes every recorded event. Listeners run synchronously and must not block.
type Listener func(ctx context.Context, event domain.ErrorEvent)

// Log is an append-only, size-bounded log of operational events.
type Log struct {
	mu        sync.Mutex
	events    []domain.ErrorEvent
	capacity  int
	repo      domain.ErrorLogRepository
	clock     clock.Clock
	listeners []Listener
}

// New creates a log. repo may be nil for an in-memory only log.
func New(capacity int, repo domain.ErrorLogRepository, clk clock.Clock) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Log{
		events:   make([]domain.ErrorEvent, 0, capacity),
		capacity: capacity,
		repo:     repo,
		clock:    clk,
	}
}

func (l *Log) Subscribe(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Restore loads the durable mirror into memory.
func (l *Log) Restore(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}

	events, err := l.repo.Recent(ctx, l.capacity)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = l.events[:0]
	// repository returns newest first
	for i := len(events) - 1; i >= 0; i-- {
		l.events = append(l.events, events[i])
	}
	return nil
}

// Record appends an event, mirrors it and notifies listeners.
func (l *Log) Record(ctx context.Context, event domain.ErrorEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.clock.Now()
	}

	l.mu.Lock()
	if len(l.events) >= l.capacity {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, event)
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	logEvent(ctx, event)

	if l.repo != nil {
		if err := l.repo.Append(ctx, event, l.capacity); err != nil {
			slog.WarnContext(ctx, "failed to mirror error event",
				slog.String("category", event.Category.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, fn := range listeners {
		fn(ctx, event)
	}
}

// Report records err under category and severity.
func (l *Log) Report(ctx context.Context, category domain.ErrorCategory, severity domain.Severity, component string, recordID int64, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	l.Record(ctx, domain.ErrorEvent{
		Category:  category,
		Severity:  severity,
		Component: component,
		Message:   msg,
		RecordID:  recordID,
	})
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(limit int) []domain.ErrorEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]domain.ErrorEvent, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// CountSince counts events at or after since that match.
func (l *Log) CountSince(since time.Time, match func(domain.ErrorEvent) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.events {
		if e.OccurredAt.Before(since) {
			continue
		}
		if match == nil || match(e) {
			n++
		}
	}
	return n
}

// CountsByCategory groups events at or after since by category.
func (l *Log) CountsByCategory(since time.Time) map[domain.ErrorCategory]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[domain.ErrorCategory]int)
	for _, e := range l.events {
		if !e.OccurredAt.Before(since) {
			counts[e.Category]++
		}
	}
	return counts
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func logEvent(ctx context.Context, e domain.ErrorEvent) {
	level := slog.LevelInfo
	switch e.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityCritical:
		level = slog.LevelError
	}

	slog.Log(ctx, level, "operational event",
		slog.String("category", e.Category.String()),
		slog.String("severity", e.Severity.String()),
		slog.String("component", e.Component),
		slog.Int64("record_id", e.RecordID),
		slog.String("message", e.Message),
	)
}
