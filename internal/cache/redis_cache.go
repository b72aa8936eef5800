package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"magistral/backend/internal/domain"
)

const baixaKeyPrefix = "baixas:"

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisBaixaCache struct {
	client redis.UniversalClient
}

func NewRedisBaixaCache(client redis.UniversalClient) *RedisBaixaCache {
	return &RedisBaixaCache{client: client}
}

// Get reads the hash field for version. Fields of older versions stay behind
// until the key expires or is invalidated.
func (c *RedisBaixaCache) Get(ctx context.Context, saleID string, version int64) ([]domain.Baixa, bool, error) {
	val, err := c.client.HGet(ctx, baixaKeyPrefix+saleID, versionField(version)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entries []domain.Baixa
	if err := json.Unmarshal([]byte(val), &entries); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func (c *RedisBaixaCache) Set(ctx context.Context, saleID string, version int64, entries []domain.Baixa, ttl time.Duration) error {
	if entries == nil {
		entries = []domain.Baixa{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	key := baixaKeyPrefix + saleID
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, versionField(version), payload)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (c *RedisBaixaCache) Invalidate(ctx context.Context, saleIDs ...string) error {
	if len(saleIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(saleIDs))
	for _, id := range saleIDs {
		keys = append(keys, baixaKeyPrefix+id)
	}
	return c.client.Del(ctx, keys...).Err()
}

func versionField(version int64) string {
	return strconv.FormatInt(version, 10)
}
