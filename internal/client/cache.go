package client

import (
	"context"
	"sync"

	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"github.com/paulmach/orb/geojson"
)

// RequestCache memoizes feature collections per layer query for the life of
// the process. The key space is a small fixed product of grids, segments,
// metrics and periods, so entries are never evicted. Failed fetches are not
// cached.
type RequestCache struct {
	inner   FeatureSource
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]*geojson.FeatureCollection
}

// NewRequestCache creates a cache decorator around a feature source.
func NewRequestCache(inner FeatureSource, metrics *observability.Metrics) *RequestCache {
	return &RequestCache{
		inner:   inner,
		metrics: metrics,
		entries: make(map[string]*geojson.FeatureCollection),
	}
}

// Features returns the cached collection for q, fetching it on a miss. Hits
// return the same pointer every time; callers must not modify it.
func (c *RequestCache) Features(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	q = q.Normalize()
	key := q.Key()

	if fc, ok := c.get(key); ok {
		c.metrics.LayerCache.WithLabelValues("hit").Inc()
		return fc, nil
	}
	c.metrics.LayerCache.WithLabelValues("miss").Inc()

	fc, err := c.inner.Features(ctx, q)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent miss may have stored first; keep that one.
	if existing, ok := c.entries[key]; ok {
		return existing, nil
	}
	c.entries[key] = fc
	return fc, nil
}

// Len reports the number of cached collections.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RequestCache) get(key string) (*geojson.FeatureCollection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fc, ok := c.entries[key]
	return fc, ok
}
