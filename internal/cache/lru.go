// Package cache provides a small bounded LRU cache for intermediate
// market-parameter extractions shared across sibling batch variations.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// Stats reports cache performance counters
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type entry struct {
	value    interface{}
	accessed time.Time
	seq      uint64 // breaks ties between same-timestamp accesses
}

// LRU is a bounded least-recently-used cache. Both Get and Set refresh
// recency. Eviction scans all entries; the bound stays small (≤ ~100) so
// the O(n) scan is fine. Safe for concurrent use.
type LRU struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int
	seq     uint64

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a cache holding at most maxSize entries; non-positive
// sizes fall back to 100.
func NewLRU(maxSize int) *LRU {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &LRU{
		entries: make(map[string]*entry, maxSize),
		maxSize: maxSize,
	}
}

// Key builds a composite cache key from the order book identity and the
// request fields that affect market-parameter extraction. Volatility is
// part of the key because a per-request override changes the extraction.
func Key(exchange, symbol string, bookTimestamp time.Time, quantity float64, isBuy bool, volatility float64) string {
	side := "sell"
	if isBuy {
		side = "buy"
	}
	return fmt.Sprintf("%s:%s:%d:%.10f:%s:%.6f", exchange, symbol, bookTimestamp.UnixNano(), quantity, side, volatility)
}

// Get returns the cached value and refreshes its recency
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	c.hits++
	c.seq++
	e.accessed = time.Now()
	e.seq = c.seq
	return e.value, true
}

// Set stores a value, evicting the least-recently-touched entry on
// overflow
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.accessed = time.Now()
		e.seq = c.seq
		return
	}

	c.entries[key] = &entry{value: value, accessed: time.Now(), seq: c.seq}
	if len(c.entries) > c.maxSize {
		c.evictOldest()
	}
}

// evictOldest removes the single least-recently-touched entry. Caller must
// hold the lock.
func (c *LRU) evictOldest() {
	var oldestKey string
	var oldestSeq uint64
	first := true
	for key, e := range c.entries {
		if first || e.seq < oldestSeq {
			oldestKey = key
			oldestSeq = e.seq
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Len returns the current entry count
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries and resets counters
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry, c.maxSize)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Stats returns a snapshot of the cache counters
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}
