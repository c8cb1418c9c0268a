package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Cache stores live observations per city. Get returns cached data if present
// and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.LiveObservation, bool, error)
	Set(ctx context.Context, key string, value models.LiveObservation, ttl time.Duration) error
}

// Key normalizes a city name into a cache key. Lookups against the dataset stay
// case-sensitive; only the cache key folds case.
func Key(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.LiveObservation
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns (data, true, nil) on hit and (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.LiveObservation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.LiveObservation{}, false, nil
	}

	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.LiveObservation{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under key until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.LiveObservation, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
