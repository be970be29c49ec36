// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const resultCacheKeyPrefix = "cidadao:result:"

// ResultCache stores processed query responses keyed by the normalized
// query text. Redis is the primary store so replicas share hits; when Redis
// is not configured or unreachable the cache degrades to a process-local
// map rather than failing queries.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger

	mu    sync.RWMutex
	local map[string]localCacheEntry
}

type localCacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewResultCache connects to Redis when redisURL is set. An empty URL or a
// failed connection yields a memory-only cache.
func NewResultCache(redisURL string, ttl time.Duration) *ResultCache {
	cache := &ResultCache{
		ttl:    ttl,
		local:  make(map[string]localCacheEntry),
		logger: log.New(os.Stdout, "[RESULT_CACHE] ", log.LstdFlags),
	}

	if redisURL == "" {
		cache.logger.Println("REDIS_URL not set, using in-memory cache")
		return cache
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		cache.logger.Printf("invalid REDIS_URL, using in-memory cache: %v", err)
		return cache
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		cache.logger.Printf("Redis unreachable, using in-memory cache: %v", err)
		_ = client.Close()
		return cache
	}

	cache.client = client
	cache.logger.Println("Redis result cache connected")
	return cache
}

// cacheKey hashes the normalized query so accents and casing do not split
// the cache
func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return resultCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached response for a query, if any
func (c *ResultCache) Get(ctx context.Context, query string) (*QueryResponse, bool) {
	key := cacheKey(query)

	var payload []byte
	if c.client != nil {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			payload = data
		} else if err != redis.Nil {
			c.logger.Printf("Redis get failed: %v", err)
		}
	}

	if payload == nil {
		c.mu.RLock()
		entry, ok := c.local[key]
		c.mu.RUnlock()
		if !ok || time.Now().After(entry.expiresAt) {
			return nil, false
		}
		payload = entry.payload
	}

	var response QueryResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		c.logger.Printf("corrupt cache entry dropped: %v", err)
		c.Invalidate(ctx, query)
		return nil, false
	}
	return &response, true
}

// Set stores a response under the query's cache key
func (c *ResultCache) Set(ctx context.Context, query string, response *QueryResponse) {
	payload, err := json.Marshal(response)
	if err != nil {
		c.logger.Printf("failed to marshal response for cache: %v", err)
		return
	}
	key := cacheKey(query)

	if c.client != nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Printf("Redis set failed: %v", err)
		} else {
			return
		}
	}

	c.mu.Lock()
	c.local[key] = localCacheEntry{payload: payload, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops the entry for one query
func (c *ResultCache) Invalidate(ctx context.Context, query string) {
	key := cacheKey(query)
	if c.client != nil {
		_ = c.client.Del(ctx, key).Err()
	}
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
}

// Cleanup removes expired local entries. Called periodically from Run.
func (c *ResultCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for key, entry := range c.local {
		if now.After(entry.expiresAt) {
			delete(c.local, key)
			removed++
		}
	}
	return removed
}

// IsHealthy reports whether the backing store responds. A memory-only cache
// is always healthy.
func (c *ResultCache) IsHealthy() bool {
	if c.client == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// Close releases the Redis connection
func (c *ResultCache) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}
