package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const balanceKeyPrefix = "inventory:balance:"

// BalanceCache stores advisory balance snapshots. Every invalidation bumps a
// per-product generation; a snapshot is stored only if the generation seen
// before the database read is still current.
type BalanceCache interface {
	Get(ctx context.Context, productID uuid.UUID) (bal Balance, generation int64, ok bool, err error)
	Set(ctx context.Context, bal Balance, generation int64) (bool, error)
	Invalidate(ctx context.Context, productIDs ...uuid.UUID) error
}

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisBalanceCache keeps Balance JSON in Redis.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBalanceCache instantiates the cache helper.
func NewRedisBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl}
}

// The hash tag keeps a snapshot and its generation in one cluster slot.
func balanceKey(productID uuid.UUID) string {
	return balanceKeyPrefix + "{" + productID.String() + "}"
}

func generationKey(productID uuid.UUID) string {
	return balanceKey(productID) + ":gen"
}

// Get returns the cached snapshot, whether it was present, and the current
// generation to hand back to Set on a miss.
func (c *RedisBalanceCache) Get(ctx context.Context, productID uuid.UUID) (Balance, int64, bool, error) {
	if c == nil || c.client == nil {
		return Balance{}, 0, false, nil
	}
	values, err := c.client.MGet(ctx, balanceKey(productID), generationKey(productID)).Result()
	if err != nil {
		return Balance{}, 0, false, err
	}
	var generation int64
	if raw, ok := values[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Balance{}, 0, false, fmt.Errorf("balance cache generation: %w", err)
		}
	}
	payload, ok := values[0].(string)
	if !ok {
		return Balance{}, generation, false, nil
	}
	var bal Balance
	if err := json.Unmarshal([]byte(payload), &bal); err != nil {
		return Balance{}, generation, false, err
	}
	return bal, generation, true, nil
}

// Set stores bal until the TTL expires or a write invalidates it. It reports
// false, storing nothing, when an invalidation happened after generation was
// read.
func (c *RedisBalanceCache) Set(ctx context.Context, bal Balance, generation int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := json.Marshal(bal)
	if err != nil {
		return false, err
	}
	keys := []string{balanceKey(bal.ProductID), generationKey(bal.ProductID)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(generation, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the snapshots of the given products and bumps their
// generations.
func (c *RedisBalanceCache) Invalidate(ctx context.Context, productIDs ...uuid.UUID) error {
	if c == nil || c.client == nil || len(productIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range productIDs {
			pipe.Del(ctx, balanceKey(id))
			pipe.Incr(ctx, generationKey(id))
		}
		return nil
	})
	return err
}
