package profile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/storage"
)

// Kind namespaces cache keys by lookup step.
type Kind string

const (
	KindUserID   Kind = "user-id"
	KindUserInfo Kind = "user-info"
	KindAvatar   Kind = "avatar"
	KindProfile  Kind = "profile"
)

// Key identifies one cached lookup result.
type Key struct {
	Kind Kind
	Arg  string
}

// Cache memoizes lookup results for the life of the process. Entries never
// expire; Clear drops everything. An optional backend receives every write.
type Cache struct {
	backend storage.CacheStore
	now     func() time.Time

	mu      sync.RWMutex
	entries map[Key][]byte
}

// NewCache builds a cache; backend may be nil.
func NewCache(backend storage.CacheStore) *Cache {
	return &Cache{
		backend: backend,
		now:     time.Now,
		entries: make(map[Key][]byte),
	}
}

// Load fills the cache from the backend.
func (c *Cache) Load(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	entries, err := c.backend.ListCacheEntries(ctx)
	if err != nil {
		return fmt.Errorf("load profile cache: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		c.entries[Key{Kind: Kind(entry.Kind), Arg: entry.Arg}] = entry.Value
	}
	return nil
}

// Get returns the cached value for key.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Put stores value under key and writes it through to the backend. Backend
// failures are logged; the in-memory entry is kept either way.
func (c *Cache) Put(ctx context.Context, key Key, value []byte) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()

	if c.backend == nil {
		return
	}
	err := c.backend.PutCacheEntry(ctx, storage.CacheEntry{
		Kind:      string(key.Kind),
		Arg:       key.Arg,
		Value:     value,
		CreatedAt: c.now(),
	})
	if err != nil {
		log.Printf("profile cache: persist %s/%s: %v", key.Kind, key.Arg, err)
	}
}

// Clear drops every entry, in memory and in the backend.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()

	if c.backend == nil {
		return nil
	}
	if err := c.backend.ClearCacheEntries(ctx); err != nil {
		return fmt.Errorf("clear profile cache: %w", err)
	}
	return nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
