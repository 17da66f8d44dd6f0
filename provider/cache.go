package provider

import (
	"container/list"
	"sync"
	"time"
)

// sessionCacheEntry represents a cached payment session
type sessionCacheEntry struct {
	Session      *PaymentSession
	Key          string
	CreatedAt    time.Time
	LastAccessed time.Time
	listElement  *list.Element // For LRU tracking
}

// SessionCache fronts the session store with a bounded read cache
type SessionCache interface {
	// Get retrieves a session from cache, returns nil if not found
	Get(paymentID string) *PaymentSession

	// Set stores a session in cache
	Set(paymentID string, session *PaymentSession)

	// Delete removes a session from cache
	Delete(paymentID string)

	// Clear removes all entries from cache
	Clear()

	// Size returns the current number of cached entries
	Size() int

	// Stats returns cache statistics
	Stats() CacheStats

	// Cleanup removes expired entries
	Cleanup()
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

// InMemorySessionCache implements SessionCache with LRU eviction and TTL expiry
type InMemorySessionCache struct {
	entries     map[string]*sessionCacheEntry
	accessOrder *list.List // most recent at front
	maxSize     int
	ttl         time.Duration
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewSessionCache creates a new in-memory session cache
func NewSessionCache(maxSize int, ttl time.Duration) SessionCache {
	return &InMemorySessionCache{
		entries:     make(map[string]*sessionCacheEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
	}
}

// Get retrieves a session from cache
func (c *InMemorySessionCache) Get(paymentID string) *PaymentSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[paymentID]
	if !exists {
		c.misses++
		return nil
	}

	// Check TTL expiry
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		c.deleteEntryLocked(paymentID, entry)
		c.ttlExpiries++
		c.misses++
		return nil
	}

	entry.LastAccessed = time.Now()
	c.accessOrder.MoveToFront(entry.listElement)

	c.hits++
	return entry.Session
}

// Set stores a session in cache
func (c *InMemorySessionCache) Set(paymentID string, session *PaymentSession) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[paymentID]; exists {
		existing.Session = session
		existing.CreatedAt = now
		existing.LastAccessed = now
		c.accessOrder.MoveToFront(existing.listElement)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}

	entry := &sessionCacheEntry{
		Session:      session,
		Key:          paymentID,
		CreatedAt:    now,
		LastAccessed: now,
	}
	entry.listElement = c.accessOrder.PushFront(entry)

	c.entries[paymentID] = entry
}

// Delete removes a session from cache
func (c *InMemorySessionCache) Delete(paymentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[paymentID]; exists {
		c.deleteEntryLocked(paymentID, entry)
	}
}

// Clear removes all entries from cache
func (c *InMemorySessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*sessionCacheEntry)
	c.accessOrder = list.New()
}

// Size returns the current number of cached entries
func (c *InMemorySessionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns cache statistics
func (c *InMemorySessionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalRequests := c.hits + c.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(c.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
		TTL:         c.ttl,
	}
}

// Cleanup removes expired entries
func (c *InMemorySessionCache) Cleanup() {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expiredKeys []string

	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) > c.ttl {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		if entry, exists := c.entries[key]; exists {
			c.deleteEntryLocked(key, entry)
			c.ttlExpiries++
		}
	}
}

// evictLRULocked removes the least recently used entry (lock held)
func (c *InMemorySessionCache) evictLRULocked() {
	lruElement := c.accessOrder.Back()
	if lruElement == nil {
		return
	}

	lruEntry := lruElement.Value.(*sessionCacheEntry)
	c.deleteEntryLocked(lruEntry.Key, lruEntry)
	c.evictions++
}

// deleteEntryLocked removes an entry from both map and list (lock held)
func (c *InMemorySessionCache) deleteEntryLocked(key string, entry *sessionCacheEntry) {
	delete(c.entries, key)
	if entry.listElement != nil {
		c.accessOrder.Remove(entry.listElement)
	}
}
