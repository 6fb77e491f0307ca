package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

type healthRepository struct {
	client *redis.Client
}

func NewHealthRepository(client *redis.Client) domain.HealthRepository {
	return &healthRepository{
		client: client,
	}
}

func (r *healthRepository) Load(ctx context.Context) (*domain.HealthState, error) {
	data, err := r.client.Get(ctx, healthKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrHealthStateNotFound
		}
		return nil, err
	}

	var state domain.HealthState
	if err := json.Unmarshal(data, &state); err != nil {
		// a corrupt health state is dropped; the controller starts from Normal
		r.client.Del(ctx, healthKey)
		return nil, domain.ErrHealthStateNotFound
	}
	return &state, nil
}

func (r *healthRepository) Save(ctx context.Context, state *domain.HealthState) error {
	if state == nil {
		return ErrInvalidHealthData
	}

	data, err := json.Marshal(state)
	if err != nil {
		return ErrInvalidHealthData
	}
	return r.client.Set(ctx, healthKey, data, 0).Err()
}
