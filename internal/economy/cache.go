package economy

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResolveCache is a read-through Redis cache of resolve decisions, keyed per
// (owner, unit). Only the read-only resolve endpoint consults it; consumption
// and redemption always re-derive state inside a storage transaction, so a
// stale cached decision can never over-grant a mutation. Staleness is bounded
// by the TTL plus best-effort invalidation on mutations.
//
// All methods are nil-safe: a nil *ResolveCache (Redis not configured) turns
// every operation into a no-op, so callers never branch on cache presence.
type ResolveCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResolveCache wraps a Redis client. Returns nil when rdb is nil.
func NewResolveCache(rdb *redis.Client, ttl time.Duration) *ResolveCache {
	if rdb == nil {
		return nil
	}
	return &ResolveCache{rdb: rdb, ttl: ttl}
}

func cacheKey(ownerID, unit string) string {
	return "resolve:" + ownerID + ":" + unit
}

// Get returns the cached decision and whether one was present. Cache errors
// degrade to a miss.
func (c *ResolveCache) Get(ctx context.Context, ownerID, unit string) (*Decision, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, cacheKey(ownerID, unit)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("resolve cache read failed", "error", err)
		return nil, false
	}

	d := &Decision{}
	if err := json.Unmarshal(raw, d); err != nil {
		slog.Warn("resolve cache entry corrupt, ignoring", "error", err)
		return nil, false
	}

	return d, true
}

// Set stores a decision. Best effort; failures are logged and swallowed.
func (c *ResolveCache) Set(ctx context.Context, ownerID, unit string, d *Decision) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(ownerID, unit), raw, c.ttl).Err(); err != nil {
		slog.Warn("resolve cache write failed", "error", err)
	}
}

// Invalidate drops the cached decision for one (owner, unit). Best effort;
// a missed invalidation only extends staleness up to the TTL.
func (c *ResolveCache) Invalidate(ctx context.Context, ownerID, unit string) {
	if c == nil {
		return
	}

	if err := c.rdb.Del(ctx, cacheKey(ownerID, unit)).Err(); err != nil {
		slog.Warn("resolve cache invalidation failed", "error", err)
	}
}
