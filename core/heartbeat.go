package core

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sync"
	"time"
)

// InstanceHeartbeat is the liveness record each replica publishes to Redis.
// It is stored as JSON under a TTL key; instances that stop flushing
// disappear from the replica listing on their own.
type InstanceHeartbeat struct {
	InstanceID       string    `json:"instance_id"`
	Hostname         string    `json:"hostname"`
	PID              int       `json:"pid"`
	ModelLoaded      bool      `json:"model_loaded"`
	PredictionsTotal int64     `json:"predictions_total"`
	FailedTotal      int64     `json:"failed_total"`
	LastError        string    `json:"last_error,omitempty"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	NumGoroutine     int       `json:"num_goroutine"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SaveHeartbeat stores heartbeat JSON with TTL.
func SaveHeartbeat(ctx context.Context, client RedisClientRaw, hb InstanceHeartbeat) error {
	hb.UpdatedAt = time.Now()
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return client.Set(ctx, HeartbeatKey(hb.InstanceID), data, HeartbeatTTL).Err()
}

// HeartbeatState holds one replica's aggregate counters and flushes them
// to Redis in the background. Handlers only touch the counters.
type HeartbeatState struct {
	mu sync.Mutex
	hb InstanceHeartbeat
}

func NewHeartbeatState(instanceID string, modelLoaded bool) *HeartbeatState {
	hostname, _ := os.Hostname()
	return &HeartbeatState{
		hb: InstanceHeartbeat{
			InstanceID:  instanceID,
			Hostname:    hostname,
			PID:         os.Getpid(),
			ModelLoaded: modelLoaded,
			StartedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		},
	}
}

// Start flushes the heartbeat periodically until ctx is cancelled.
// The ticker lives here so constructing the state without starting it,
// as happens when Redis is unavailable, allocates nothing to stop.
func (s *HeartbeatState) Start(ctx context.Context, client RedisClientRaw) {
	// Publish once immediately so the replica shows up before the first tick.
	s.flush(ctx, client)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx, client)
		}
	}
}

// PredictionRecorded bumps the served/failed counters after each prediction.
func (s *HeartbeatState) PredictionRecorded(count int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.PredictionsTotal += int64(count)
	if err != nil {
		s.hb.FailedTotal++
		s.hb.LastError = err.Error()
	}
}

// Snapshot returns a copy of the current heartbeat for local introspection.
func (s *HeartbeatState) Snapshot() InstanceHeartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := s.hb
	hb.UptimeSeconds = int64(time.Since(hb.StartedAt).Seconds())
	hb.NumGoroutine = runtime.NumGoroutine()
	return hb
}

func (s *HeartbeatState) flush(ctx context.Context, client RedisClientRaw) {
	if client == nil {
		return
	}
	_ = SaveHeartbeat(ctx, client, s.Snapshot())
}
