package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const tagKeyPrefix = "tag:"

// Options controls one cached entry: the shared-tier TTL, the (shorter) local
// TTL, and the tags the entry can later be evicted by.
type Options struct {
	TTL      time.Duration
	LocalTTL time.Duration
	Tags     []string
}

// Cache is a two-tier cache-aside layer: a fast in-process tier in front of a
// shared redis tier. Either tier being down degrades reads to compute-through;
// the cache is advisory and never authoritative.
type Cache struct {
	local  *localTier
	shared *redis.Client
	group  singleflight.Group
	logger zerolog.Logger
}

// New builds a cache. A nil shared client disables the shared tier, leaving
// local-only caching (used in tests and single-node deployments).
func New(shared *redis.Client, logger zerolog.Logger) *Cache {
	return &Cache{
		local:  newLocalTier(),
		shared: shared,
		logger: logger,
	}
}

// GetOrCreate returns the cached value for key from the first tier that has
// it, or invokes compute exactly once per key (concurrent callers for the
// same key share the in-flight computation) and stores the result in both
// tiers under the given tags.
func GetOrCreate[T any](ctx context.Context, c *Cache, key string, opts Options, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok := c.local.get(key); ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
		c.logger.Warn().Str("key", key).Msg("corrupt local cache entry, recomputing")
	}

	if raw, ok := c.sharedGet(ctx, key); ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			c.local.set(key, raw, opts.LocalTTL, opts.Tags)
			return value, nil
		}
		c.logger.Warn().Str("key", key).Msg("corrupt shared cache entry, recomputing")
	}

	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
		}

		c.local.set(key, encoded, opts.LocalTTL, opts.Tags)
		c.sharedSet(ctx, key, encoded, opts)
		return encoded, nil
	})
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal(raw.([]byte), &value); err != nil {
		return zero, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return value, nil
}

// RemoveByTag evicts every entry carrying the tag from both tiers. A shared
// tier failure is returned for the caller to log; the entries there stay
// valid until their TTL expires.
func (c *Cache) RemoveByTag(ctx context.Context, tag string) error {
	c.local.removeByTag(tag)

	if c.shared == nil {
		return nil
	}

	tagKey := tagKeyPrefix + tag
	keys, err := c.shared.SMembers(ctx, tagKey).Result()
	if err != nil {
		return fmt.Errorf("failed to enumerate tag %s: %w", tag, err)
	}
	if len(keys) > 0 {
		if err := c.shared.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to evict entries for tag %s: %w", tag, err)
		}
	}
	if err := c.shared.Del(ctx, tagKey).Err(); err != nil {
		return fmt.Errorf("failed to drop tag set %s: %w", tag, err)
	}

	c.logger.Debug().Str("tag", tag).Int("evicted", len(keys)).Msg("cache entries evicted by tag")
	return nil
}

func (c *Cache) sharedGet(ctx context.Context, key string) ([]byte, bool) {
	if c.shared == nil {
		return nil, false
	}
	raw, err := c.shared.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		// A shared-tier outage must not fail the read.
		c.logger.Warn().Err(err).Str("key", key).Msg("shared cache tier unavailable, computing through")
		return nil, false
	}
	return raw, true
}

func (c *Cache) sharedSet(ctx context.Context, key string, value []byte, opts Options) {
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, value, opts.TTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store shared cache entry")
		return
	}
	for _, tag := range opts.Tags {
		tagKey := tagKeyPrefix + tag
		if err := c.shared.SAdd(ctx, tagKey, key).Err(); err != nil {
			c.logger.Warn().Err(err).Str("tag", tag).Msg("failed to tag shared cache entry")
			continue
		}
		// Tag sets outlive their newest member at most by the entry TTL.
		if err := c.shared.Expire(ctx, tagKey, opts.TTL).Err(); err != nil {
			c.logger.Warn().Err(err).Str("tag", tag).Msg("failed to expire tag set")
		}
	}
}

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

type localTier struct {
	mu      sync.Mutex
	entries map[string]localEntry
	tags    map[string]map[string]struct{}
}

func newLocalTier() *localTier {
	return &localTier{
		entries: make(map[string]localEntry),
		tags:    make(map[string]map[string]struct{}),
	}
}

func (t *localTier) get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(t.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (t *localTier) set(key string, value []byte, ttl time.Duration, tags []string) {
	if ttl <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	for _, tag := range tags {
		keys, ok := t.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (t *localTier) removeByTag(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.tags[tag] {
		delete(t.entries, key)
	}
	delete(t.tags, tag)
}
