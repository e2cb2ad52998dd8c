package mapbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/region-aggregator/internal/observability"
	"github.com/couchcryptid/region-aggregator/internal/regions"
)

// keyPrecision rounds coordinates to about 11m so neighbouring lookups share an entry.
const keyPrecision = 4

// CachedGeocoder wraps a regions.Geocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner   regions.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner regions.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// ReverseGeocode serves from cache or delegates to the wrapped geocoder.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey(lat, lng)
	if name, ok := c.cache.get(key); ok {
		c.observe("hit")
		return name, nil
	}
	c.observe("miss")

	name, err := c.inner.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	// Empty answers stay uncached so a later run can retry them.
	if name != "" {
		c.cache.put(key, name)
	}
	return name, nil
}

func (c *CachedGeocoder) observe(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(methodReverse, result).Inc()
	}
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("rev:%.*f,%.*f", keyPrecision, lat, keyPrecision, lng)
}

// lruCache is a thread-safe LRU of region names.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value string
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
