package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

type recordRepository struct {
	client *redis.Client
}

func NewRecordRepository(client *redis.Client) domain.RecordRepository {
	return &recordRepository{
		client: client,
	}
}

func (r *recordRepository) NextID(ctx context.Context) (int64, error) {
	id, err := r.client.Incr(ctx, recordSequenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisConnection, err)
	}
	return id, nil
}

func (r *recordRepository) Get(ctx context.Context, id int64) (*domain.ReminderRecord, error) {
	data, err := r.client.HGet(ctx, recordsKey, strconv.FormatInt(id, 10)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	record, err := domain.DecodeRecord(data)
	if err != nil {
		return nil, r.reset(ctx, err)
	}
	return record, nil
}

func (r *recordRepository) Save(ctx context.Context, record *domain.ReminderRecord) error {
	if record == nil || record.ID == 0 {
		return ErrInvalidRecordData
	}

	data, err := domain.EncodeRecord(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecordData, err)
	}

	return r.client.HSet(ctx, recordsKey, strconv.FormatInt(record.ID, 10), data).Err()
}

func (r *recordRepository) Delete(ctx context.Context, id int64) error {
	return r.client.HDel(ctx, recordsKey, strconv.FormatInt(id, 10)).Err()
}

func (r *recordRepository) List(ctx context.Context) ([]*domain.ReminderRecord, error) {
	entries, err := r.client.HGetAll(ctx, recordsKey).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*domain.ReminderRecord, 0, len(entries))
	for _, data := range entries {
		record, err := domain.DecodeRecord([]byte(data))
		if err != nil {
			return nil, r.reset(ctx, err)
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// reset clears the record collection after corruption. The id sequence is kept so
// resynced records never reuse an id.
func (r *recordRepository) reset(ctx context.Context, cause error) error {
	slog.ErrorContext(ctx, "corrupt reminder record, resetting collection",
		slog.String("key", recordsKey),
		slog.String("error", cause.Error()),
	)
	if err := r.client.Del(ctx, recordsKey).Err(); err != nil {
		return fmt.Errorf("failed to reset records: %w", err)
	}
	return fmt.Errorf("%w: records: %v", domain.ErrCollectionReset, cause)
}
