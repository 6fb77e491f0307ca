package repository

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

type errorLogRepository struct {
	client *redis.Client
}

func NewErrorLogRepository(client *redis.Client) domain.ErrorLogRepository {
	return &errorLogRepository{
		client: client,
	}
}

func (r *errorLogRepository) Append(ctx context.Context, event domain.ErrorEvent, capacity int) error {
	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidEventData
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, errorLogKey, data)
	if capacity > 0 {
		pipe.LTrim(ctx, errorLogKey, 0, int64(capacity-1))
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (r *errorLogRepository) Recent(ctx context.Context, limit int) ([]domain.ErrorEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	values, err := r.client.LRange(ctx, errorLogKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	events := make([]domain.ErrorEvent, 0, len(values))
	for _, v := range values {
		var e domain.ErrorEvent
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
