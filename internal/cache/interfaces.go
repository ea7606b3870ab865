package cache

import (
	"context"
	"time"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// Cache defines the interface for geolocation result caching
type Cache interface {
	// Get retrieves the location cached under key
	Get(ctx context.Context, key string) (domain.Geo, bool, error)

	// Set stores a location under key for the cache's lifetime
	Set(ctx context.Context, key string, geo domain.Geo) error

	// Delete removes a cache entry
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection (if applicable)
	Close() error
}

// SweepingCache extends Cache with background eviction of expired entries
type SweepingCache interface {
	Cache

	// StartBackgroundSweep starts evicting expired entries at the given interval
	StartBackgroundSweep(ctx context.Context, interval time.Duration) error

	// StopBackgroundSweep stops background eviction
	StopBackgroundSweep() error
}
