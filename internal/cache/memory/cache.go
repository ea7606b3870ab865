package memory

import (
	"context"
	"sync"
	"time"

	"github.com/joshdurbin/shortlinks/internal/cache"
	"github.com/joshdurbin/shortlinks/internal/domain"
)

type entry struct {
	geo       domain.Geo
	expiresAt time.Time
}

// Cache implements cache.SweepingCache using in-memory storage
type Cache struct {
	data     map[string]entry
	ttl      time.Duration
	now      func() time.Time
	mutex    sync.RWMutex
	stopChan chan struct{}
	running  bool
}

// New creates a new in-memory cache whose entries live for ttl
func New(ttl time.Duration) *Cache {
	return &Cache{
		data:     make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// WithClock replaces the time source
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get retrieves a cache entry. Expired entries are reported as missing.
func (c *Cache) Get(ctx context.Context, key string) (domain.Geo, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.data[key]
	if !exists || c.now().After(e.expiresAt) {
		return domain.Geo{}, false, nil
	}

	return copyGeo(e.geo), true, nil
}

// Set stores a cache entry
func (c *Cache) Set(ctx context.Context, key string, geo domain.Geo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = entry{
		geo:       copyGeo(geo),
		expiresAt: c.now().Add(c.ttl),
	}

	return nil
}

// Delete removes a cache entry
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Sweep removes expired entries and returns how many were removed
func (c *Cache) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// StartBackgroundSweep starts background eviction with the given interval
func (c *Cache) StartBackgroundSweep(ctx context.Context, interval time.Duration) error {
	c.mutex.Lock()
	if c.running {
		c.mutex.Unlock()
		return nil // Already running
	}
	c.running = true
	stopChan := c.stopChan
	c.mutex.Unlock()

	go c.backgroundSweep(ctx, interval, stopChan)
	return nil
}

// StopBackgroundSweep stops background eviction
func (c *Cache) StopBackgroundSweep() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.running {
		return nil
	}

	c.running = false
	close(c.stopChan)

	// Create new channel for potential restart
	c.stopChan = make(chan struct{})
	return nil
}

// backgroundSweep runs the eviction loop
func (c *Cache) backgroundSweep(ctx context.Context, interval time.Duration, stopChan chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the cache (stops background sweep)
func (c *Cache) Close() error {
	return c.StopBackgroundSweep()
}

func copyGeo(g domain.Geo) domain.Geo {
	return domain.Geo{
		Country: copyString(g.Country),
		Region:  copyString(g.Region),
		City:    copyString(g.City),
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Ensure Cache implements the interfaces
var _ cache.Cache = (*Cache)(nil)
var _ cache.SweepingCache = (*Cache)(nil)
