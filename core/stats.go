package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// StatsService reads replica heartbeats and maintains per-instance
// prediction counters in Redis. All of it is best-effort: Redis being
// down degrades these features, never the prediction path.
type StatsService struct {
	redis RedisClientRaw
}

func NewStatsService(redis RedisClientRaw) *StatsService {
	return &StatsService{redis: redis}
}

// Replicas returns every heartbeat still present in Redis.
func (s *StatsService) Replicas(ctx context.Context) ([]InstanceHeartbeat, error) {
	iter := s.redis.Scan(ctx, 0, HeartbeatKeyPrefix+"*", 100).Iterator()
	var res []InstanceHeartbeat
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var hb InstanceHeartbeat
		if err := json.Unmarshal([]byte(val), &hb); err != nil {
			continue
		}
		res = append(res, hb)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// IncrPredictions bumps the durable per-instance counter by n.
func (s *StatsService) IncrPredictions(ctx context.Context, instanceID string, n int64) error {
	return s.redis.IncrBy(ctx, StatsKey(instanceID), n).Err()
}

// Predictions reads the per-instance counter; missing key counts as zero.
func (s *StatsService) Predictions(ctx context.Context, instanceID string) (int64, error) {
	n, err := s.redis.Get(ctx, StatsKey(instanceID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
