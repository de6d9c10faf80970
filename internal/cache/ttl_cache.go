package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// TTLCache is a bounded in-memory map whose entries expire after a fixed TTL.
// When full, the oldest entry is evicted to make room.
type TTLCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func New[V any](config Config) *TTLCache[V] {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	return &TTLCache[V]{
		entries:    make(map[string]entry[V]),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.entries[key]
	if !exists {
		var zero V
		return zero, false
	}
	if c.now().After(item.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.pruneExpired(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldest()
		}
	}
	c.entries[key] = entry[V]{value: value, createdAt: now, expiresAt: now.Add(c.ttl)}
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTLCache[V]) pruneExpired(now time.Time) {
	for key, item := range c.entries {
		if now.After(item.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *TTLCache[V]) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key       string
		createdAt time.Time
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, item := range c.entries {
		pairs = append(pairs, pair{key: key, createdAt: item.createdAt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].createdAt.Before(pairs[j].createdAt)
	})
	delete(c.entries, pairs[0].key)
}

// Signature hashes the JSON encoding of value into a stable hex digest.
func Signature(value any) string {
	payload, _ := json.Marshal(value)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
