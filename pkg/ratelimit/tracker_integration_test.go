//go:build integration

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, "storefront", logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state != nil {
		t.Errorf("GetState() = %+v, want nil on empty Redis", state)
	}

	status := ThrottleStatus{MaximumAvailable: 2000, CurrentlyAvailable: 1500.5, RestoreRate: 100}
	if err := tracker.Update(ctx, status); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Available != 1500.5 {
		t.Errorf("Available = %v, want 1500.5", state.Available)
	}
	if state.Maximum != 2000 || state.RestoreRate != 100 {
		t.Errorf("GetState() = %+v", state)
	}
	if state.IsStale(5 * time.Second) {
		t.Error("freshly written state reports stale")
	}
}

func TestTracker_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	a := NewTracker(redisClient, "admin", logger)
	b := NewTracker(redisClient, "admin", logger)
	other := NewTracker(redisClient, "storefront", logger)
	ctx := context.Background()

	if err := a.Update(ctx, ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 10, RestoreRate: 50}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	state, err := b.GetState(ctx)
	if err != nil || state == nil {
		t.Fatalf("GetState() = %v, %v", state, err)
	}
	if state.Available != 10 {
		t.Errorf("Available = %v, want 10", state.Available)
	}

	if s, _ := other.GetState(ctx); s != nil {
		t.Error("scopes share state")
	}

	b.SetMaxWait(200 * time.Millisecond)
	start := time.Now()
	if err := b.Wait(ctx, 20); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() exceeded its bound")
	}
}
