// Package cache holds the Redis-backed coordination used when several
// ETL instances share one database.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/config"
)

// DefaultRunGuardKey is the Redis key holding the sync lock
const DefaultRunGuardKey = "prohandel-etl:sync:lock"

const releaseTimeout = 5 * time.Second

// releaseScript deletes the lock only while it still holds our token, so a
// run whose lock expired cannot free a lock taken by another instance
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// lockClient is the subset of the Redis client the guard uses
type lockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisRunGuard admits one sync run across every instance sharing a Redis
// server. The lock expires after ttl so a crashed holder cannot block
// syncs forever.
type RedisRunGuard struct {
	client lockClient
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisRunGuard creates a guard on key. An empty key uses DefaultRunGuardKey.
func NewRedisRunGuard(client lockClient, key string, ttl time.Duration, logger *zap.Logger) *RedisRunGuard {
	if key == "" {
		key = DefaultRunGuardKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRunGuard{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.Named("run_guard"),
	}
}

// TryAcquire takes the lock with SET NX. It reports false without error when
// another instance holds it.
func (g *RedisRunGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.release(ctx, token) })
	}, true, nil
}

func (g *RedisRunGuard) release(ctx context.Context, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	n, err := g.client.Eval(ctx, releaseScript, []string{g.key}, token).Int64()
	if err != nil {
		g.logger.Error("Failed to release sync lock", zap.String("key", g.key), zap.Error(err))
		return
	}
	if n == 0 {
		g.logger.Warn("Sync lock expired before release", zap.String("key", g.key), zap.Duration("ttl", g.ttl))
	}
}
