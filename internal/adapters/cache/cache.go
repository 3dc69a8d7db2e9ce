package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// DefaultSize is used when a non-positive size is configured
const DefaultSize = 100

type entry struct {
	record         *models.ContractRecord
	insertedAt     time.Time
	lastAccessedAt time.Time
}

// Stats is a snapshot of cache counters
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// RecordCache is a bounded LRU of contract records with a TTL measured from
// insertion. A nil *RecordCache is a disabled cache: every Get misses and
// nothing is counted.
type RecordCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most size records for ttl each.
// A zero ttl disables expiry.
func New(size int, ttl time.Duration) *RecordCache {
	if size <= 0 {
		size = DefaultSize
	}
	lru, err := simplelru.NewLRU(size, nil)
	if err != nil {
		// NewLRU only fails for non-positive sizes
		panic(err)
	}
	return &RecordCache{
		lru:      lru,
		capacity: size,
		ttl:      ttl,
		now:      time.Now,
	}
}

// NewFromConfig returns nil when caching is disabled
func NewFromConfig(cfg config.CacheConfig) *RecordCache {
	if !cfg.Enabled {
		return nil
	}
	return New(cfg.Size, cfg.TTL)
}

// Get returns a copy of the cached record
func (c *RecordCache) Get(key string) (*models.ContractRecord, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	e := raw.(*entry)
	now := c.now()
	if c.ttl > 0 && now.Sub(e.insertedAt) > c.ttl {
		c.lru.Remove(key)
		c.evictions++
		c.misses++
		return nil, false
	}
	e.lastAccessedAt = now
	c.hits++
	return e.record.Clone(), true
}

// Put stores a copy of rec, evicting the least recently used entry when full
func (c *RecordCache) Put(key string, rec *models.ContractRecord) {
	if c == nil || rec == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if evicted := c.lru.Add(key, &entry{
		record:         rec.Clone(),
		insertedAt:     now,
		lastAccessedAt: now,
	}); evicted {
		c.evictions++
	}
}

// Invalidate drops one key
func (c *RecordCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear drops every entry and keeps the counters
func (c *RecordCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of cached entries, expired ones included
func (c *RecordCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// HitRate returns hits/(hits+misses), or 0 before any lookup
func (c *RecordCache) HitRate() float64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitRate()
}

func (c *RecordCache) hitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Stats returns the current counters
func (c *RecordCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   c.hitRate(),
	}
}
