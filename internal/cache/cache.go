package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/patrickmn/go-cache"
)

// Cache holds recently read case records keyed by CNR.
type Cache interface {
	Get(cnr string) (*database.CaseRecord, bool)
	Set(cnr string, rec *database.CaseRecord)
	Delete(cnr string)
	Clear()
	Stats() CacheStats
}

var _ Cache = (*LRUCache)(nil)

type CacheStats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Size       int       `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

type LRUCache struct {
	cache   *cache.Cache
	mu      sync.Mutex
	stats   CacheStats
	maxSize int
}

func NewCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRUCache{
		cache:   cache.New(ttl, ttl*2),
		maxSize: maxSize,
	}
}

// Key is the cache key for a CNR.
func Key(cnr string) string {
	return fmt.Sprintf("case:cnr:%s", strings.ToUpper(strings.TrimSpace(cnr)))
}

func (c *LRUCache) Get(cnr string) (*database.CaseRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()

	if data, found := c.cache.Get(Key(cnr)); found {
		if rec, ok := data.(*database.CaseRecord); ok {
			c.stats.Hits++
			copied := *rec
			return &copied, true
		}
	}

	c.stats.Misses++
	return nil, false
}

func (c *LRUCache) Set(cnr string, rec *database.CaseRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(cnr)
	if _, exists := c.cache.Get(key); !exists && c.cache.ItemCount() >= c.maxSize {
		c.removeOldest()
	}

	copied := *rec
	c.cache.Set(key, &copied, cache.DefaultExpiration)
}

func (c *LRUCache) Delete(cnr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(Key(cnr))
}

// Invalidate drops the cached copy of a record that was just written.
func (c *LRUCache) Invalidate(rec *database.CaseRecord) {
	c.Delete(rec.CNR)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	c.stats = CacheStats{}
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Size = c.cache.ItemCount()
	return c.stats
}

// removeOldest evicts the entry closest to expiry, which is the one set
// longest ago since every entry shares the default TTL.
func (c *LRUCache) removeOldest() {
	var oldestKey string
	var oldest int64

	for key, item := range c.cache.Items() {
		if oldestKey == "" || item.Expiration < oldest {
			oldestKey = key
			oldest = item.Expiration
		}
	}

	if oldestKey != "" {
		c.cache.Delete(oldestKey)
	}
}
