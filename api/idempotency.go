package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "idempotency:todos"

// pendingID marks a claimed key whose create has not finished yet.
const pendingID = ""

// RedisDeduper stores idempotency keys in Redis so every instance answers a
// replayed create with the same todo.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(key string) string {
	return dedupeKeyPrefix + ":" + key
}

// Claim reserves key with SETNX. When the key already exists the recorded id
// is returned instead.
func (r *RedisDeduper) Claim(ctx context.Context, key string) (bool, string, error) {
	added, err := r.client.SetNX(ctx, r.key(key), pendingID, r.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if added {
		return true, "", nil
	}
	existing, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET; report it as still pending
			return false, pendingID, nil
		}
		return false, "", err
	}
	return false, existing, nil
}

// Complete stores the created todo id under a previously claimed key.
func (r *RedisDeduper) Complete(ctx context.Context, key, id string) error {
	return r.client.Set(ctx, r.key(key), id, r.ttl).Err()
}

// Release deletes a claimed key. It is used when the create fails so the
// client may retry with the same key.
func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
