package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const tombstone = "deleted"

// setIfNewer writes ARGV[1] unless the key holds a tombstone or a newer
// version of the same cart. A late refill from a read that raced a write
// therefore can't replace the written cart.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	if cur == ARGV[4] then
		return 0
	end
	local ok, c = pcall(cjson.decode, cur)
	if ok and type(c) == 'table' and c['id'] == ARGV[2] then
		local v = tonumber(c['version'])
		if v and v > tonumber(ARGV[3]) then
			return 0
		end
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[5])
return 1
`)

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{
		client:       client,
		baseTTL:      15 * time.Minute,
		tombstoneTTL: time.Minute,
	}
}

type RedisCache struct {
	client       redis.UniversalClient
	baseTTL      time.Duration
	tombstoneTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) || string(data) == tombstone {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

// Set stores the cart with a jittered TTL so entries written together don't
// all expire together. A guest cart never outlives its own expiry. An older
// version of a cached cart is silently dropped.
func (r *RedisCache) Set(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if cart.ExpiresAt != nil {
		remaining := time.Until(*cart.ExpiresAt)
		if remaining <= 0 {
			return nil
		}
		if remaining < ttl {
			ttl = remaining
		}
	}

	if ttl < time.Millisecond {
		return nil
	}

	keys := []string{cacheKey(cart.Owner())}
	err = setIfNewer.Run(ctx, r.client, keys, data, cart.ID, cart.Version, tombstone, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete leaves a short-lived tombstone so a refill already in flight for the
// deleted cart is refused.
func (r *RedisCache) Delete(ctx context.Context, owner domain.Owner) error {
	if err := r.client.Set(ctx, cacheKey(owner), tombstone, r.tombstoneTTL).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(owner domain.Owner) string {
	return fmt.Sprintf("cart:%s", owner.Topic())
}
