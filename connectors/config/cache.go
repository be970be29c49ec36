// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"sync"
	"time"

	"cidadao/platform/connectors/base"
)

// CacheEntry is a value with an expiry
type CacheEntry[T any] struct {
	Value      T
	ExpiresAt  time.Time
	LastUpdate time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry[T]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// CatalogCache caches per-category source lists and agent profiles between
// catalog reloads, so the selector does not rescan the registry on every
// request.
type CatalogCache struct {
	sourcesByCategory map[string]*CacheEntry[[]*base.SourceConfig]
	agents            map[string]*CacheEntry[*AgentProfile]
	ttl               time.Duration
	mu                sync.RWMutex

	statsMu sync.Mutex
	stats   CacheStats
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits         int64
	Misses       int64
	Evictions    int64
	LastEviction time.Time
}

// NewCatalogCache creates a cache with the given TTL (default 30s)
func NewCatalogCache(ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CatalogCache{
		sourcesByCategory: make(map[string]*CacheEntry[[]*base.SourceConfig]),
		agents:            make(map[string]*CacheEntry[*AgentProfile]),
		ttl:               ttl,
	}
}

// GetSources retrieves the cached source list for a category
func (c *CatalogCache) GetSources(category string) ([]*base.SourceConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.sourcesByCategory[category]
	if !exists || entry.IsExpired() {
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return entry.Value, true
}

// SetSources caches the source list for a category
func (c *CatalogCache) SetSources(category string, sources []*base.SourceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.sourcesByCategory[category] = &CacheEntry[[]*base.SourceConfig]{
		Value:      sources,
		ExpiresAt:  now.Add(c.ttl),
		LastUpdate: now,
	}
}

// GetAgent retrieves a cached agent profile
func (c *CatalogCache) GetAgent(name string) (*AgentProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.agents[name]
	if !exists || entry.IsExpired() {
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return entry.Value, true
}

// SetAgent caches an agent profile
func (c *CatalogCache) SetAgent(name string, profile *AgentProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.agents[name] = &CacheEntry[*AgentProfile]{
		Value:      profile,
		ExpiresAt:  now.Add(c.ttl),
		LastUpdate: now,
	}
}

// Invalidate clears cached entries for a category, or everything when empty
func (c *CatalogCache) Invalidate(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == "" {
		c.sourcesByCategory = make(map[string]*CacheEntry[[]*base.SourceConfig])
		c.agents = make(map[string]*CacheEntry[*AgentProfile])
	} else {
		delete(c.sourcesByCategory, category)
	}

	c.statsMu.Lock()
	c.stats.Evictions++
	c.stats.LastEviction = time.Now()
	c.statsMu.Unlock()
}

// Cleanup removes expired entries; call periodically
func (c *CatalogCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.sourcesByCategory {
		if entry.IsExpired() {
			delete(c.sourcesByCategory, key)
			evicted++
		}
	}
	for key, entry := range c.agents {
		if entry.IsExpired() {
			delete(c.agents, key)
			evicted++
		}
	}

	if evicted > 0 {
		c.statsMu.Lock()
		c.stats.Evictions += int64(evicted)
		c.stats.LastEviction = time.Now()
		c.statsMu.Unlock()
	}
	return evicted
}

// GetStats returns a copy of the cache statistics
func (c *CatalogCache) GetStats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// HitRate returns the hit rate as a percentage
func (c *CatalogCache) HitRate() float64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total) * 100
}

func (c *CatalogCache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *CatalogCache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}
