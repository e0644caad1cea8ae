// Package cache provides a short-TTL retrieval cache for repeated memory
// queries, invalidated whenever a project's memory or graph is mutated.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lorekeep/lorekeep/internal/models"
)

// RetrievalCache caches query results per project. Implementations must be
// safe for concurrent use.
type RetrievalCache interface {
	// Get returns the cached entries for a query key, or ok=false.
	Get(ctx context.Context, project, key string) ([]models.MemoryEntry, bool)

	// Set stores entries under a query key.
	Set(ctx context.Context, project, key string, entries []models.MemoryEntry)

	// Invalidate drops every cached result for a project.
	Invalidate(ctx context.Context, project string)
}

// QueryKey derives a stable cache key from the query inputs.
func QueryKey(text string, kinds []models.MemoryKind, topK int) string {
	h := sha256.New()
	h.Write([]byte(text))
	for _, k := range kinds {
		h.Write([]byte{0})
		h.Write([]byte(k))
	}
	var k [8]byte
	binary.LittleEndian.PutUint64(k[:], uint64(topK))
	h.Write(k[:])
	return hex.EncodeToString(h.Sum(nil))[:32]
}

type memoryItem struct {
	entries []models.MemoryEntry
	expires time.Time
}

// MemoryCache is the in-process cache backend.
type MemoryCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	projects map[string]map[string]memoryItem
}

var _ RetrievalCache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-process cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:      ttl,
		projects: make(map[string]map[string]memoryItem),
	}
}

func (c *MemoryCache) Get(_ context.Context, project, key string) ([]models.MemoryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items, ok := c.projects[project]
	if !ok {
		return nil, false
	}
	item, ok := items[key]
	if !ok || time.Now().After(item.expires) {
		return nil, false
	}
	return item.entries, true
}

func (c *MemoryCache) Set(_ context.Context, project, key string, entries []models.MemoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.projects[project]
	if !ok {
		items = make(map[string]memoryItem)
		c.projects[project] = items
	}
	items[key] = memoryItem{entries: entries, expires: time.Now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(_ context.Context, project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.projects, project)
}
