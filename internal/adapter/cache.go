package adapter

import (
	"time"

	"github.com/greyhatharola/Oracular/internal/domain"
)

// endpointCache keys entries by endpoint string, returning a value iff
// now-ts < cache_ttl (spec §4.1 "Cache"). Unlike internal/cache's
// background-sweep Cache, this is deliberately a bare single-entry-per-key
// map with lazy eviction on read: adapter cache scope is one task's
// lifetime, so no size bound or cleanup goroutine is warranted.
type endpointCache struct {
	ttl     time.Duration
	entries map[string]cachedPoint
}

type cachedPoint struct {
	point domain.DataPoint
	at    time.Time
}

func newEndpointCache(ttl time.Duration) *endpointCache {
	return &endpointCache{ttl: ttl, entries: make(map[string]cachedPoint)}
}

func (c *endpointCache) get(endpoint string) (domain.DataPoint, bool) {
	if c.ttl <= 0 {
		return domain.DataPoint{}, false
	}
	entry, ok := c.entries[endpoint]
	if !ok {
		return domain.DataPoint{}, false
	}
	if time.Since(entry.at) >= c.ttl {
		delete(c.entries, endpoint)
		return domain.DataPoint{}, false
	}
	return entry.point, true
}

func (c *endpointCache) set(endpoint string, dp domain.DataPoint) {
	c.entries[endpoint] = cachedPoint{point: dp, at: time.Now()}
}
