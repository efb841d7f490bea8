// Package cache memoizes read results for a short TTL.
//
// Keys are "namespace:part:part". Writes to the store evict whole namespaces
// with InvalidatePrefixes instead of flushing everything; a full Clear runs
// once a day at local midnight. Time comes from an injected clock.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
)

// Namespaces of cached reads.
const (
	NSHistory = "history"
	NSCurrent = "current"
	NSHighest = "highest"
	NSDow     = "dow"
	NSDaily   = "daily"
	NSWeekly  = "weekly"
	NSDayAvg  = "dayavg"
	NSHeatmap = "heatmap"
	NSPredict = "predict"
	NSStats   = "stats"
)

const (
	keySep     = ":"
	nsFallback = "other"
)

// WriteSensitive lists the namespaces a new reading can change.
var WriteSensitive = []string{
	NSHistory, NSCurrent, NSHighest, NSDow, NSDaily, NSWeekly, NSDayAvg, NSHeatmap, NSPredict,
}

// Entry is a cached value.
type Entry struct {
	Data       any
	InsertedAt time.Time
	ExpiresAt  time.Time
}

// Stats are cumulative counters.
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	TotalKeys   int64     `json:"totalKeys"`
	LastCleanup time.Time `json:"lastCleanup"`
}

// Cache is a TTL map safe for concurrent use.
type Cache struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]Entry
	stats   Stats
}

// New creates a cache whose entries live for ttl unless set otherwise.
func New(clk clock.Clock, ttl time.Duration) *Cache {
	return &Cache{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]Entry),
	}
}

// Key joins a namespace and its parameters.
func Key(namespace string, parts ...string) string {
	if len(parts) == 0 {
		return namespace
	}
	return namespace + keySep + strings.Join(parts, keySep)
}

// Get returns a live entry's data.
func (c *Cache) Get(key string) (any, bool) {
	ns := Namespace(key)
	now := c.clock.Now()

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss(ns)
		return nil, false
	}

	if !now.Before(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed it.
		if e, ok := c.entries[key]; ok && !now.Before(e.ExpiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
			metrics.CacheEvictions.WithLabelValues("expired").Inc()
		}
		c.mu.Unlock()
		c.recordMiss(ns)
		return nil, false
	}

	c.recordHit(ns)
	return entry.Data, true
}

// Set stores value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value for ttl. A non-positive ttl uses the default.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Data: value, InsertedAt: now, ExpiresAt: now.Add(ttl)}
}

// Delete drops one key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
		metrics.CacheEvictions.WithLabelValues("invalidated").Inc()
	}
}

// InvalidatePrefixes drops every key in the given namespaces and returns how
// many were removed. Other namespaces are untouched.
func (c *Cache) InvalidatePrefixes(namespaces ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for key := range c.entries {
		ns := Namespace(key)
		for _, target := range namespaces {
			if ns == target {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	c.stats.Evictions += int64(removed)
	metrics.CacheEvictions.WithLabelValues("invalidated").Add(float64(removed))
	return removed
}

// Clear drops everything.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]Entry)
	c.stats.Evictions += int64(n)
	metrics.CacheEvictions.WithLabelValues("flushed").Add(float64(n))
	return n
}

// Sweep removes expired entries.
func (c *Cache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Evictions += int64(removed)
	c.stats.LastCleanup = now
	metrics.CacheEvictions.WithLabelValues("expired").Add(float64(removed))
	return removed
}

// Len counts stored entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.TotalKeys = int64(len(c.entries))
	return s
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache) recordHit(ns string) {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.CacheHits.WithLabelValues(ns).Inc()
}

func (c *Cache) recordMiss(ns string) {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	metrics.CacheMisses.WithLabelValues(ns).Inc()
}

// Namespace returns the namespace part of a key.
func Namespace(key string) string {
	if i := strings.Index(key, keySep); i >= 0 {
		return key[:i]
	}
	if key == "" {
		return nsFallback
	}
	return key
}
