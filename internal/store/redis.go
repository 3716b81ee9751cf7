package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0355290812/petapp-cart/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	cartKey = "petapp:cart:items"
	initKey = "petapp:cart:server_init"
)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// RedisStore persists the cart snapshot and the server-init flag.
// Unlike a cache there is no TTL: the snapshot must survive restarts.
type RedisStore struct {
	client *redis.Client
}

func (r *RedisStore) LoadCart(ctx context.Context) ([]domain.CartLine, error) {
	data, err := r.client.Get(ctx, cartKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []domain.CartLine
	if err2 := json.Unmarshal(data, &lines); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return lines, nil
}

func (r *RedisStore) SaveCart(ctx context.Context, lines []domain.CartLine) error {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := r.client.Set(ctx, cartKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) ServerInit(ctx context.Context) (bool, error) {
	val, err := r.client.Get(ctx, initKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return val == "true", nil
}

func (r *RedisStore) SetServerInit(ctx context.Context) error {
	if err := r.client.Set(ctx, initKey, "true", 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) ClearServerInit(ctx context.Context) error {
	if err := r.client.Del(ctx, initKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
