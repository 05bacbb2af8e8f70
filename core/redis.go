package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys for replica heartbeats and prediction counters.
const (
	HeartbeatKeyPrefix = "sentiment:heartbeat:"
	HeartbeatTTL       = 15 * time.Second
	StatsKeyPrefix     = "sentiment:stats:"
)

// HeartbeatKey returns the Redis key for a given instance ID.
func HeartbeatKey(instanceID string) string {
	return HeartbeatKeyPrefix + instanceID
}

// StatsKey returns the Redis key holding an instance's prediction counter.
func StatsKey(instanceID string) string {
	return StatsKeyPrefix + instanceID
}

// RedisClientRaw exposes the minimal subset used for heartbeats and stats.
type RedisClientRaw interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
