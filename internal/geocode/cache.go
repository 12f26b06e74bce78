// Package geocode enriches assets with place descriptions. Coordinates are
// bucketed onto a coarse grid before lookup so nearby shots share one
// resolution, results live in a bounded in-memory cache, and outbound
// requests to the external service are rate limited by this side, not the
// service's.
package geocode

import (
	"fmt"
	"sync"

	"github.com/mmcdole/sweep/internal/domain"
)

const (
	defaultCacheCap = 1000
	// evictFraction of the oldest entries is dropped on overflow.
	evictFraction = 0.20
)

// gridKey rounds a coordinate to three decimal places, roughly 111m cells at
// the equator. Photos taken at the same spot resolve once.
func gridKey(c domain.Coordinate) string {
	return fmt.Sprintf("%.3f,%.3f", c.Lat, c.Lon)
}

// placeCache is a bounded insertion-ordered cache of resolved places.
type placeCache struct {
	mu    sync.Mutex
	cap   int
	order []string
	place map[string]string
}

func newPlaceCache(cap int) *placeCache {
	if cap <= 0 {
		cap = defaultCacheCap
	}
	return &placeCache{
		cap:   cap,
		place: make(map[string]string),
	}
}

func (c *placeCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.place[key]
	return p, ok
}

func (c *placeCache) put(key, place string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.place[key]; !ok {
		c.order = append(c.order, key)
	}
	c.place[key] = place

	if len(c.order) <= c.cap {
		return
	}
	drop := int(float64(c.cap) * evictFraction)
	if drop < 1 {
		drop = 1
	}
	for _, k := range c.order[:drop] {
		delete(c.place, k)
	}
	c.order = append([]string(nil), c.order[drop:]...)
}

func (c *placeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
