//go:build integration

package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})
	return client
}

func TestManager_Integration_RedisExpiry(t *testing.T) {
	client := setupRedisContainer(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Kind: KindAllCars, Store: "dealer.myshopify.com"}

	if err := manager.Set(ctx, key, NewNegativeEntry(time.Second)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Second {
		t.Errorf("Redis TTL = %v, want (0, 1s]", ttl)
	}

	time.Sleep(1500 * time.Millisecond)
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestManager_Integration_SharedAcrossManagers(t *testing.T) {
	client := setupRedisContainer(t)
	a := NewManager(client)
	b := NewManager(client)
	ctx := context.Background()
	key := Key{Kind: KindCarSpecs, Store: "s", Handles: []string{"vios-2018", "civic-2020"}}

	if err := a.Set(ctx, key, NewEntry([]byte(`{"civic-2020":{}}`), time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reordered := Key{Kind: KindCarSpecs, Store: "s", Handles: []string{"civic-2020", "vios-2018"}}
	got, err := b.Get(ctx, reordered)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != `{"civic-2020":{}}` {
		t.Errorf("Data = %s", got.Data)
	}
}

func TestManager_Integration_DeletePrefix(t *testing.T) {
	client := setupRedisContainer(t)
	manager := NewManager(client)
	ctx := context.Background()
	store := "dealer.myshopify.com"

	var sets []Key
	for i := 0; i < 2*scanBatch+5; i++ {
		k := Key{Kind: KindCarSpecs, Store: store, Handles: []string{fmt.Sprintf("car-%d", i)}}
		if err := manager.Set(ctx, k, NewEntry([]byte("{}"), time.Minute)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		sets = append(sets, k)
	}
	listing := Key{Kind: KindCarSpecs, Store: store}
	if err := manager.Set(ctx, listing, NewEntry([]byte("[]"), time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := manager.DeletePrefix(ctx, HandlePrefix(KindCarSpecs, store)); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}

	for _, k := range sets {
		if _, err := manager.Get(ctx, k); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("Get(%s) error = %v, want ErrCacheMiss", k, err)
		}
	}
	if _, err := manager.Get(ctx, listing); err != nil {
		t.Errorf("key without handles was dropped: %v", err)
	}
}
