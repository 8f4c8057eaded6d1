// Package redis implements the assertion replay cache on Redis so that jti
// uniqueness holds across server instances.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache records assertion jti values in Redis with SET NX, giving an
// atomic first-writer-wins check across instances.
type ReplayCache struct {
	client *redis.Client
	prefix string
}

// NewReplayCache creates a new ReplayCache instance.
func NewReplayCache(client *redis.Client, prefix string) *ReplayCache {
	return &ReplayCache{client: client, prefix: prefix}
}

func (r *ReplayCache) redisKey(issuer, jti string) string {
	h := sha256.Sum256([]byte(issuer + "\x00" + jti))
	return fmt.Sprintf("%s:jti:%s", r.prefix, hex.EncodeToString(h[:]))
}

// Register implements cache.ReplayCache. Returns false when the jti was
// already registered by this or another instance.
func (r *ReplayCache) Register(ctx context.Context, issuer, jti string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// An expired assertion cannot replay anything; let the caller's exp
		// validation reject it.
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, r.redisKey(issuer, jti), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register jti in redis: %w", err)
	}
	return ok, nil
}
