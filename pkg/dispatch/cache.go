package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	fn string
	// shape is Args.key, not the display shape.
	shape string
}

// resolution is a cached ordering: every candidate that survived the arity
// and nominal filters for one argument shape, ranked narrowest first.
type resolution struct {
	fnVersion    uint64
	graphVersion uint64

	// total counts the candidates considered, for failure reporting.
	total      int
	matches    []*match
	rejections []Rejection
	// err is set when the arguments do not fit the function's proto.
	err error
}

// cache memoizes resolutions per (function, argument shape). Rows carry the
// registry and graph versions they were computed against; a stale row is
// recomputed. Computing a row is pure, so concurrent misses may race to
// store the same value.
type cache struct {
	rows   sync.Map
	flight singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newCache() *cache {
	return &cache{}
}

// CacheStats reports the use of an Env's dispatch cache.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

func (c *cache) get(key cacheKey, fnVersion, graphVersion uint64, compute func() *resolution) (*resolution, bool) {
	if v, ok := c.rows.Load(key); ok {
		res := v.(*resolution)
		if res.fnVersion == fnVersion && res.graphVersion == graphVersion {
			c.hits.Add(1)
			return res, true
		}
	}
	c.misses.Add(1)

	flightKey := fmt.Sprintf("%d:%s%s;%d;%d", len(key.fn), key.fn, key.shape, fnVersion, graphVersion)
	v, _, _ := c.flight.Do(flightKey, func() (any, error) {
		res := compute()
		c.rows.Store(key, res)
		return res, nil
	})
	return v.(*resolution), false
}

// evict drops every row for a function.
func (c *cache) evict(fn string) {
	c.rows.Range(func(k, _ any) bool {
		if k.(cacheKey).fn == fn {
			c.rows.Delete(k)
		}
		return true
	})
}

func (c *cache) stats() CacheStats {
	n := 0
	c.rows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: n,
	}
}

// CacheStats returns hit and miss counts for the dispatch cache.
func (e *Env) CacheStats() CacheStats {
	return e.cache.stats()
}
