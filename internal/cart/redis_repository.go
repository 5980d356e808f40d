package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = redisx.TTLCart
	}
	return &RedisRepository{client: client, ttl: ttl}
}

func (r *RedisRepository) key(userID string) string {
	return fmt.Sprintf(redisx.KeyCart, userID)
}

func (r *RedisRepository) Get(ctx context.Context, userID string) (*Cart, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: get: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cart: decode: %w", err)
	}
	c.UserID = userID
	return &c, nil
}

func (r *RedisRepository) Save(ctx context.Context, c *Cart) error {
	if c.Empty() {
		return r.Clear(ctx, c.UserID)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(c.UserID), data, r.ttl).Err()
}

func (r *RedisRepository) Clear(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
