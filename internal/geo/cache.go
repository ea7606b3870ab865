package geo

import (
	"context"
	"log/slog"

	"github.com/joshdurbin/shortlinks/internal/cache"
	"github.com/joshdurbin/shortlinks/internal/domain"
)

// Cached remembers successful lookups of the wrapped locator, keyed by the
// normalized IP. Cache failures are logged and fall through to the wrapped
// locator.
type Cached struct {
	next   Locator
	cache  cache.Cache
	logger *slog.Logger
}

// NewCached wraps next with a lookup cache
func NewCached(next Locator, c cache.Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		next:   next,
		cache:  c,
		logger: logger.With("component", "geo_cache"),
	}
}

// Locate returns the cached location for addr, looking it up on a miss
func (c *Cached) Locate(ctx context.Context, addr string) (domain.Geo, error) {
	ip := NormalizeAddr(addr)
	if ip == nil {
		return domain.Geo{}, ErrNoData
	}
	key := ip.String()

	geo, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Debug("geo cache read failed", "key", key, "error", err)
	}
	if found {
		return geo, nil
	}

	geo, err = c.next.Locate(ctx, addr)
	if err != nil {
		return geo, err
	}

	if err := c.cache.Set(ctx, key, geo); err != nil {
		c.logger.Debug("geo cache write failed", "key", key, "error", err)
	}

	return geo, nil
}

// Close closes the underlying cache
func (c *Cached) Close() error {
	return c.cache.Close()
}

var _ Locator = (*Cached)(nil)
