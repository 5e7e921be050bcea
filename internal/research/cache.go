package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/certforge/backend/internal/models"
)

// DefaultTTL is how long a research brief stays cached.
const DefaultTTL = 24 * time.Hour

// Cache stores research briefs keyed by objective id. Writes are
// last-writer-wins overwrites.
type Cache interface {
	Get(ctx context.Context, objectiveID string) (*models.ResearchResult, bool, error)
	Set(ctx context.Context, result *models.ResearchResult) error
}

func cacheKey(objectiveID string) string {
	return "research:" + objectiveID
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, objectiveID string) (*models.ResearchResult, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(objectiveID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get research: %w", err)
	}

	var r models.ResearchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode cached research: %w", err)
	}
	return &r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, result *models.ResearchResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode research: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(result.ObjectiveID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set research: %w", err)
	}
	return nil
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with the same JSON round-trip and TTL
// semantics as RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Get(_ context.Context, objectiveID string) (*models.ResearchResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(objectiveID)
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}

	var r models.ResearchResult
	if err := json.Unmarshal(e.raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode cached research: %w", err)
	}
	return &r, true, nil
}

func (c *MemoryCache) Set(_ context.Context, result *models.ResearchResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode research: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(result.ObjectiveID)] = memoryEntry{raw: raw, expiresAt: c.now().Add(c.ttl)}
	return nil
}
