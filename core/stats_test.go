package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestHeartbeatRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := testRedis(t)
	defer client.Close()
	stats := NewStatsService(client)

	hb := InstanceHeartbeat{
		InstanceID:  "api-1",
		Hostname:    "host-1",
		PID:         42,
		ModelLoaded: true,
		StartedAt:   time.Now(),
	}
	if err := SaveHeartbeat(ctx, client, hb); err != nil {
		t.Fatalf("SaveHeartbeat error: %v", err)
	}
	if err := SaveHeartbeat(ctx, client, InstanceHeartbeat{InstanceID: "api-2"}); err != nil {
		t.Fatalf("SaveHeartbeat error: %v", err)
	}

	replicas, err := stats.Replicas(ctx)
	if err != nil {
		t.Fatalf("Replicas error: %v", err)
	}
	if len(replicas) != 2 {
		t.Fatalf("replicas = %d, want 2", len(replicas))
	}
	found := false
	for _, r := range replicas {
		if r.InstanceID == "api-1" {
			found = true
			if !r.ModelLoaded || r.PID != 42 {
				t.Fatalf("unexpected heartbeat: %+v", r)
			}
		}
	}
	if !found {
		t.Fatal("api-1 heartbeat missing from listing")
	}
}

func TestHeartbeatStateCounters(t *testing.T) {
	state := NewHeartbeatState("api-1", true)
	state.PredictionRecorded(3, nil)
	state.PredictionRecorded(1, context.DeadlineExceeded)

	hb := state.Snapshot()
	if hb.PredictionsTotal != 4 {
		t.Fatalf("PredictionsTotal = %d, want 4", hb.PredictionsTotal)
	}
	if hb.FailedTotal != 1 || hb.LastError == "" {
		t.Fatalf("failure counters not recorded: %+v", hb)
	}
	if hb.InstanceID != "api-1" || !hb.ModelLoaded {
		t.Fatalf("unexpected snapshot: %+v", hb)
	}
}

func TestHeartbeatStartPublishesAndStops(t *testing.T) {
	client := testRedis(t)
	defer client.Close()

	state := NewHeartbeatState("api-1", true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		state.Start(ctx, client)
		close(done)
	}()

	// The first flush happens before the first tick.
	deadline := time.After(2 * time.Second)
	for {
		if _, err := client.Get(context.Background(), HeartbeatKey("api-1")).Result(); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("heartbeat never published")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestPredictionCounters(t *testing.T) {
	ctx := context.Background()
	client := testRedis(t)
	defer client.Close()
	stats := NewStatsService(client)

	// Missing key counts as zero.
	n, err := stats.Predictions(ctx, "api-1")
	if err != nil || n != 0 {
		t.Fatalf("Predictions on empty = %d, %v", n, err)
	}

	if err := stats.IncrPredictions(ctx, "api-1", 2); err != nil {
		t.Fatalf("IncrPredictions error: %v", err)
	}
	if err := stats.IncrPredictions(ctx, "api-1", 3); err != nil {
		t.Fatalf("IncrPredictions error: %v", err)
	}

	n, err = stats.Predictions(ctx, "api-1")
	if err != nil {
		t.Fatalf("Predictions error: %v", err)
	}
	if n != 5 {
		t.Fatalf("Predictions = %d, want 5", n)
	}
}
