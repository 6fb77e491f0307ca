package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

// Pending lists the active queue in enqueue order.
func (e *Engine) Pending(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	items, err := e.queue.List(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionReset) {
			e.report(ctx, domain.CategoryFatalLocal, domain.SeverityWarning, "sync.queue", 0, err)
			return nil, nil
		}
		return nil, err
	}
	return items, nil
}

func (e *Engine) DeadLetters(ctx context.Context) ([]*domain.DeadLetter, error) {
	return e.queue.ListDeadLetters(ctx)
}

func (e *Engine) Conflicts(ctx context.Context, limit int) ([]*domain.SyncConflict, error) {
	return e.queue.ListConflicts(ctx, limit)
}

// Requeue moves a dead letter back to the active queue with a fresh retry budget.
func (e *Engine) Requeue(ctx context.Context, id string) (*domain.SyncQueueItem, error) {
	letter, err := e.queue.GetDeadLetter(ctx, id)
	if err != nil {
		return nil, err
	}

	item := letter.Item
	item.RetryCount = 0
	item.Attempts = 0
	item.NextRetryAt = nil
	item.LastError = ""
	item.Unresolvable = false
	item.EnqueuedAt = e.clock.Now()

	if err := e.queue.Append(ctx, &item); err != nil {
		return nil, fmt.Errorf("failed to requeue dead letter: %w", err)
	}
	if err := e.queue.RemoveDeadLetter(ctx, id); err != nil && !errors.Is(err, domain.ErrDeadLetterNotFound) {
		return nil, fmt.Errorf("failed to remove requeued dead letter: %w", err)
	}

	slog.InfoContext(ctx, "dead letter requeued",
		slog.String("item_id", id),
		slog.Int64("record_id", item.RecordID),
	)
	return &item, nil
}

// Purge drops a dead letter for good.
func (e *Engine) Purge(ctx context.Context, id string) error {
	if err := e.queue.RemoveDeadLetter(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "dead letter purged",
		slog.String("item_id", id),
	)
	return nil
}
