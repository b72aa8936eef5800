package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis holds per-key locks in Redis so several API replicas serialize
// writes to the same sale.
type Redis struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	retry  redislock.RetryStrategy
	logger *zap.Logger
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: redislock.New(rdb),
		prefix: "lock:venda",
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
		logger: logger,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("%s:%s", r.prefix, key)
	lk, err := r.client.Obtain(ctx, lockKey, r.ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		r.logger.Warn("could not obtain sale lock", zap.String("key", lockKey))
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", lockKey, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Warn("release sale lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
