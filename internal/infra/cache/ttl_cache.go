// Package cache provides a process-local TTL cache with prefix invalidation
// and LRU eviction.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value        any
	expiresAt    time.Time
	lastAccessed time.Time
}

// TTLCache is a mutex-guarded key/value store. Get never returns an expired
// entry; expired entries are purged lazily on read and swept periodically.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int

	sweepTick time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// Options configures a TTLCache. Zero values fall back to sane defaults.
type Options struct {
	TTL       time.Duration
	MaxSize   int
	SweepTick time.Duration
}

// New creates a TTLCache and starts its sweep loop.
func New(opts Options) *TTLCache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 1024
	}
	sweepTick := opts.SweepTick
	if sweepTick <= 0 {
		sweepTick = time.Minute
	}
	c := &TTLCache{
		entries:   make(map[string]*entry),
		ttl:       ttl,
		maxSize:   maxSize,
		sweepTick: sweepTick,
		stop:      make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get retrieves a live value. Expired entries are deleted on the spot.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if now.After(ent.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	ent.lastAccessed = now
	return ent.value, true
}

// Set stores a value under the cache's default TTL.
func (c *TTLCache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL, evicting the least recently
// accessed entry when the cache is full.
func (c *TTLCache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &entry{
		value:        value,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
}

// Delete removes a single key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeletePattern removes every key matching a trailing-wildcard pattern
// ("gateway:preset:research:*"). A pattern without "*" deletes exactly that
// key. It returns the number of removed entries.
func (c *TTLCache) DeletePattern(pattern string) int {
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()

	if !wildcard {
		if _, ok := c.entries[pattern]; ok {
			delete(c.entries, pattern)
			return 1
		}
		return 0
	}
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry.
func (c *TTLCache) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, ent := range c.entries {
		if now.After(ent.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Stop terminates the sweep loop. The cache stays usable afterwards.
func (c *TTLCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *TTLCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

// evictOldest removes the least recently accessed entry. Caller holds the
// lock.
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, ent := range c.entries {
		if oldestKey == "" || ent.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = ent.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
