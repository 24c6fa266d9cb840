package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "notify_ack:"

// RedisReplayGuard shares acknowledged notification fingerprints across instances
type RedisReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReplayGuard creates a Redis-backed replay guard
func NewRedisReplayGuard(client *redis.Client, ttl time.Duration) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, ttl: ttl}
}

func (r *RedisReplayGuard) Seen(ctx context.Context, fingerprint string) (bool, error) {
	exists, err := r.client.Exists(ctx, replayKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check replay key: %w", err)
	}
	return exists > 0, nil
}

func (r *RedisReplayGuard) Remember(ctx context.Context, fingerprint string) error {
	if err := r.client.Set(ctx, replayKeyPrefix+fingerprint, time.Now().Unix(), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store replay key: %w", err)
	}
	return nil
}

// Stats returns counters for the health endpoint.
func (r *RedisReplayGuard) Stats() map[string]interface{} {
	return map[string]interface{}{
		"backend":          "redis",
		"notification_ttl": r.ttl.String(),
	}
}
