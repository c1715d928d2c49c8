package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timedeal/timesale/internal/port"
)

const (
	claimKeyPrefix = "claim:"
	stockKeyPrefix = "stock:"

	// Claims expire so that a crashed process cannot block a pair forever;
	// the orders table's unique key remains the durable backstop.
	claimTTL = 24 * time.Hour
)

// Returns -1 for an untracked key so callers can tell "never warmed"
// apart from "tracked and empty".
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// Credits only keys that exist; a plain INCRBY would materialize a
// counter for untracked products and start gating them at the credited
// value.
var incrementStockScript = redis.NewScript(`
local key = KEYS[1]

if redis.call('EXISTS', key) == 1 then
	redis.call('INCRBY', key, tonumber(ARGV[1]))
	return 1
end

return 0
`)

// RedisAdapter serves two hot-path concerns: the duplicate guard
// (one SETNX claim per user/product pair) and the stock gate (a cached
// stock counter that fast-fails obvious sell-outs before they reach the
// authoritative store).
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Acquire(ctx context.Context, userID, productID string) (bool, error) {
	return r.client.SetNX(ctx, claimKey(userID, productID), 1, claimTTL).Result()
}

func (r *RedisAdapter) Release(ctx context.Context, userID, productID string) error {
	return r.client.Del(ctx, claimKey(userID, productID)).Err()
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, productID string, quantity int) (port.GateResult, error) {
	key := stockKeyPrefix + productID

	result, err := decrementStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return port.GateUnknown, err
	}
	switch result {
	case 1:
		return port.GateDebited, nil
	case 0:
		return port.GateExhausted, nil
	default:
		return port.GateUnknown, nil
	}
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	return incrementStockScript.Run(ctx, r.client, []string{stockKeyPrefix + productID}, quantity).Err()
}

// SetStock warms the gate with the authoritative count at startup.
func (r *RedisAdapter) SetStock(ctx context.Context, productID string, quantity int) error {
	return r.client.Set(ctx, stockKeyPrefix+productID, quantity, 0).Err()
}

func claimKey(userID, productID string) string {
	return claimKeyPrefix + userID + ":" + productID
}
