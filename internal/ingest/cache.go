package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/fieldwater/irrigaudit/internal/models"
)

// Cache stores fetched series by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (models.WeatherSeries, bool)
	Set(key string, series models.WeatherSeries)
}

// CacheKey identifies a fetch by location and window.
func CacheKey(coord models.Coordinate, window models.Window) string {
	return fmt.Sprintf("%s|p%d|f%d", coord, window.PastDays, window.ForecastDays)
}

type cacheEntry struct {
	series    models.WeatherSeries
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache returns a cache whose entries live for ttl. now defaults to
// time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *MemoryCache) Get(key string) (models.WeatherSeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return models.WeatherSeries{}, false
	}
	return copySeries(e.series), true
}

func (c *MemoryCache) Set(key string, series models.WeatherSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		series:    copySeries(series),
		expiresAt: c.now().Add(c.ttl),
	}
}

// Prune drops expired entries and reports how many were removed.
func (c *MemoryCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copySeries(s models.WeatherSeries) models.WeatherSeries {
	if s.Days != nil {
		days := make([]models.WeatherDay, len(s.Days))
		copy(days, s.Days)
		s.Days = days
	}
	return s
}
