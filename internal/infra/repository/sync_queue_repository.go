package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

type syncQueueRepository struct {
	client       *redis.Client
	conflictsCap int64
}

func NewSyncQueueRepository(client *redis.Client) domain.SyncQueueRepository {
	return &syncQueueRepository{
		client:       client,
		conflictsCap: defaultConflictsCap,
	}
}

func (r *syncQueueRepository) Append(ctx context.Context, item *domain.SyncQueueItem) error {
	if item == nil || item.ID == "" {
		return ErrInvalidQueueData
	}

	data, err := json.Marshal(item)
	if err != nil {
		return ErrInvalidQueueData
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, syncItemsKey, item.ID, data)
	pipe.RPush(ctx, syncOrderKey, item.ID)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *syncQueueRepository) List(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	ids, err := r.client.LRange(ctx, syncOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := r.client.HMGet(ctx, syncItemsKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	items := make([]*domain.SyncQueueItem, 0, len(ids))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// order entry without a body, left behind by an interrupted removal
			r.client.LRem(ctx, syncOrderKey, 0, ids[i])
			continue
		}

		var item domain.SyncQueueItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, r.reset(ctx, err)
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *syncQueueRepository) Update(ctx context.Context, item *domain.SyncQueueItem) error {
	if item == nil || item.ID == "" {
		return ErrInvalidQueueData
	}

	exists, err := r.client.HExists(ctx, syncItemsKey, item.ID).Result()
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrQueueItemNotFound
	}

	data, err := json.Marshal(item)
	if err != nil {
		return ErrInvalidQueueData
	}
	return r.client.HSet(ctx, syncItemsKey, item.ID, data).Err()
}

func (r *syncQueueRepository) Remove(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, syncItemsKey, id)
	pipe.LRem(ctx, syncOrderKey, 0, id)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *syncQueueRepository) AppendDeadLetter(ctx context.Context, letter *domain.DeadLetter) error {
	if letter == nil || letter.Item.ID == "" {
		return ErrInvalidQueueData
	}

	data, err := json.Marshal(letter)
	if err != nil {
		return ErrInvalidQueueData
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, deadLettersKey, letter.Item.ID, data)
	pipe.RPush(ctx, deadLetterOrderKey, letter.Item.ID)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *syncQueueRepository) ListDeadLetters(ctx context.Context) ([]*domain.DeadLetter, error) {
	ids, err := r.client.LRange(ctx, deadLetterOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := r.client.HMGet(ctx, deadLettersKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	letters := make([]*domain.DeadLetter, 0, len(ids))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}

		var letter domain.DeadLetter
		if err := json.Unmarshal([]byte(data), &letter); err != nil {
			return nil, ErrInvalidQueueData
		}
		letters = append(letters, &letter)
	}
	return letters, nil
}

func (r *syncQueueRepository) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	data, err := r.client.HGet(ctx, deadLettersKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrDeadLetterNotFound
		}
		return nil, err
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(data, &letter); err != nil {
		return nil, ErrInvalidQueueData
	}
	return &letter, nil
}

func (r *syncQueueRepository) RemoveDeadLetter(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.HDel(ctx, deadLettersKey, id)
	pipe.LRem(ctx, deadLetterOrderKey, 0, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return domain.ErrDeadLetterNotFound
	}
	return nil
}

func (r *syncQueueRepository) RecordConflict(ctx context.Context, conflict *domain.SyncConflict) error {
	if conflict == nil {
		return ErrInvalidQueueData
	}

	data, err := json.Marshal(conflict)
	if err != nil {
		return ErrInvalidQueueData
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, conflictsKey, data)
	pipe.LTrim(ctx, conflictsKey, 0, r.conflictsCap-1)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *syncQueueRepository) ListConflicts(ctx context.Context, limit int) ([]*domain.SyncConflict, error) {
	if limit <= 0 {
		limit = int(r.conflictsCap)
	}

	values, err := r.client.LRange(ctx, conflictsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	conflicts := make([]*domain.SyncConflict, 0, len(values))
	for _, v := range values {
		var c domain.SyncConflict
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			continue
		}
		conflicts = append(conflicts, &c)
	}
	return conflicts, nil
}

// reset clears the active queue after corruption. Dead letters are kept.
func (r *syncQueueRepository) reset(ctx context.Context, cause error) error {
	slog.ErrorContext(ctx, "corrupt sync queue item, resetting queue",
		slog.String("key", syncItemsKey),
		slog.String("error", cause.Error()),
	)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, syncItemsKey)
	pipe.Del(ctx, syncOrderKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset sync queue: %w", err)
	}
	return fmt.Errorf("%w: sync queue: %v", domain.ErrCollectionReset, cause)
}
