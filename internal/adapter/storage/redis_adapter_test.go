package storage

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/timedeal/timesale/internal/port"
)

func getRedisAdapter(t *testing.T) (*RedisAdapter, *redis.Client) {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return NewRedisAdapter(client), client
}

func TestRedis_AcquireRelease(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	defer client.Close()

	ctx := context.Background()
	client.Del(ctx, claimKey("redis-user-1", "redis-item-1"))

	ok, err := adapter.Acquire(ctx, "redis-user-1", "redis-item-1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to win")
	}

	ok, err = adapter.Acquire(ctx, "redis-user-1", "redis-item-1")
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if ok {
		t.Error("second acquire for the same pair must lose")
	}

	if err := adapter.Release(ctx, "redis-user-1", "redis-item-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	ok, _ = adapter.Acquire(ctx, "redis-user-1", "redis-item-1")
	if !ok {
		t.Error("acquire after release must win")
	}

	client.Del(ctx, claimKey("redis-user-1", "redis-item-1"))
}

func TestRedis_StockGate(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	defer client.Close()

	ctx := context.Background()
	const id = "redis-test-item"

	if err := adapter.SetStock(ctx, id, 2); err != nil {
		t.Fatalf("set stock failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := adapter.DecrementStock(ctx, id, 1)
		if err != nil {
			t.Fatalf("decrement %d failed: %v", i, err)
		}
		if result != port.GateDebited {
			t.Fatalf("decrement %d got %v with stock remaining", i, result)
		}
	}

	result, err := adapter.DecrementStock(ctx, id, 1)
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if result != port.GateExhausted {
		t.Errorf("expected GateExhausted once stock is spent, got %v", result)
	}

	if err := adapter.IncrementStock(ctx, id, 1); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	result, _ = adapter.DecrementStock(ctx, id, 1)
	if result != port.GateDebited {
		t.Errorf("expected GateDebited after a credit, got %v", result)
	}

	client.Del(ctx, stockKeyPrefix+id)
}

// A product that was never warmed into the gate is not the gate's call:
// it must answer GateUnknown, and crediting it must not create a counter.
func TestRedis_StockGate_UntrackedProduct(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	defer client.Close()

	ctx := context.Background()
	const id = "redis-untracked-item"
	client.Del(ctx, stockKeyPrefix+id)

	result, err := adapter.DecrementStock(ctx, id, 1)
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if result != port.GateUnknown {
		t.Errorf("expected GateUnknown for a missing key, got %v", result)
	}

	if err := adapter.IncrementStock(ctx, id, 1); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	exists, err := client.Exists(ctx, stockKeyPrefix+id).Result()
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if exists != 0 {
		t.Error("credit materialized a counter for an untracked product")
	}
}
