package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultBaseTTL = 15 * time.Minute

// generationTTL outlives the longest possible entry TTL.
const generationTTL = time.Hour

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: DefaultBaseTTL,
		now:     time.Now,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	now     func() time.Time
}

func (r RedisCache) Get(ctx context.Context, sessionKey, fingerprint string) (*domain.Cart, error) {
	key := cacheKey(sessionKey, fingerprint)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

// Set stores the cart with a jittered TTL, provided no Delete happened since
// generation was read. The entry never outlives the cart's own expiry, so the
// cache cannot resurrect a reaped cart.
func (r RedisCache) Set(ctx context.Context, cart *domain.Cart, generation int64) error {
	key := cacheKey(cart.SessionKey, cart.Fingerprint)
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if !cart.ExpiresAt.IsZero() {
		remaining := cart.ExpiresAt.Sub(r.now())
		if remaining <= 0 {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
			return nil
		}
		if remaining < ttl {
			ttl = remaining
		}
	}

	keys := []string{key, generationKey(cart.SessionKey, cart.Fingerprint)}
	written, err := setIfGeneration.Run(ctx, r.client, keys, generation, jsonCart, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if written == 0 {
		return ErrStaleWrite
	}
	return nil
}

// Generation reports how many times the identity's entry was invalidated
// within generationTTL. A missing counter reads as zero.
func (r RedisCache) Generation(ctx context.Context, sessionKey, fingerprint string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(sessionKey, fingerprint)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// Delete drops the entry and bumps the generation in one transaction.
func (r RedisCache) Delete(ctx context.Context, sessionKey, fingerprint string) error {
	key := cacheKey(sessionKey, fingerprint)
	genKey := generationKey(sessionKey, fingerprint)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(sessionKey, fingerprint string) string {
	return fmt.Sprintf("cart:%s:%s", sessionKey, fingerprint)
}

func generationKey(sessionKey, fingerprint string) string {
	return fmt.Sprintf("cart-gen:%s:%s", sessionKey, fingerprint)
}
