package sheets

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"flotta/internal/cache"
	"flotta/internal/metrics"
)

const platesKey = "plates"

// CachedPlates serves the plate list from a TTL cache. Concurrent misses share
// a single store call.
type CachedPlates struct {
	next  PlateLister
	cache *cache.LRUCache[[]string]
	group singleflight.Group
}

var _ PlateLister = (*CachedPlates)(nil)

func NewCachedPlates(next PlateLister, ttl time.Duration, opts ...cache.Option) *CachedPlates {
	return &CachedPlates{
		next:  next,
		cache: cache.NewLRUCache[[]string](1, ttl, opts...),
	}
}

func (c *CachedPlates) FetchDistinctPlates(ctx context.Context) ([]string, error) {
	if plates, ok := c.cache.Get(platesKey); ok {
		metrics.PlatesCacheHits.Inc()
		return append([]string(nil), plates...), nil
	}
	metrics.PlatesCacheMisses.Inc()

	v, err, _ := c.group.Do(platesKey, func() (any, error) {
		plates, err := c.next.FetchDistinctPlates(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(platesKey, plates)
		return plates, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// Invalidate drops the cached list, e.g. after a record with a new plate.
func (c *CachedPlates) Invalidate() {
	c.cache.Delete(platesKey)
}

// CleanExpired lets a cache.Manager sweep the cache.
func (c *CachedPlates) CleanExpired() int {
	return c.cache.CleanExpired()
}
