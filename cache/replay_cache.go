// Package cache provides the assertion replay caches used by client
// authentication to enforce jti uniqueness on client assertion JWTs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ReplayCache records seen assertion jti values until their expiry.
// Register returns false when the jti was already present, which signals a
// replayed client assertion.
type ReplayCache interface {
	Register(ctx context.Context, issuer, jti string, expiresAt time.Time) (bool, error)
}

// hashKey shortens the issuer+jti pair into a fixed-length cache key.
func hashKey(issuer, jti string) string {
	h := sha256.Sum256([]byte(issuer + "\x00" + jti))
	return hex.EncodeToString(h[:])
}

// MemoryReplayCache implements ReplayCache with ttlcache. Suited to a single
// instance deployment; multi-instance deployments use the redis variant.
type MemoryReplayCache struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryReplayCache creates an in-memory replay cache with automatic
// eviction of expired entries.
func NewMemoryReplayCache() *MemoryReplayCache {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()

	return &MemoryReplayCache{cache: cache}
}

// Register implements ReplayCache. GetOrSet runs under the cache lock, so
// of two concurrent registrations of the same jti exactly one sees it as
// fresh.
func (c *MemoryReplayCache) Register(_ context.Context, issuer, jti string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// An expired assertion cannot replay anything; let the caller's exp
		// validation reject it.
		return true, nil
	}

	_, present := c.cache.GetOrSet(hashKey(issuer, jti), struct{}{}, ttlcache.WithTTL[string, struct{}](ttl))
	return !present, nil
}

// Stop halts the eviction loop.
func (c *MemoryReplayCache) Stop() {
	c.cache.Stop()
}
