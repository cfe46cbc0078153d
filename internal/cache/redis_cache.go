package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"possystem/backend/internal/domain"
)

type RedisTransactionCache struct {
	client *redis.Client
}

func NewRedisTransactionCache(addr string, password string, db int) *RedisTransactionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTransactionCache{client: client}
}

func (c *RedisTransactionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTransactionCache) Close() error {
	return c.client.Close()
}

func (c *RedisTransactionCache) Get(ctx context.Context, transactionID int64) (*domain.TransactionDetails, bool, error) {
	val, err := c.client.Get(ctx, transactionKey(transactionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var details domain.TransactionDetails
	if err := json.Unmarshal([]byte(val), &details); err != nil {
		return nil, false, err
	}
	return &details, true, nil
}

func (c *RedisTransactionCache) Set(ctx context.Context, details *domain.TransactionDetails, ttl time.Duration) error {
	if details == nil {
		return nil
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, transactionKey(details.TransactionID), payload, ttl).Err()
}
