package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafinder_token_cache_hits_total",
		Help: "Total number of token resolutions served from the LRU cache.",
	})
	tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafinder_token_cache_misses_total",
		Help: "Total number of token resolutions that fell through to the store.",
	})
)

// TokenCache is an expirable LRU in front of the store's token mappings.
// Entries are TTL-bounded so a rebind in the store becomes visible once
// the cached resolution expires.
type TokenCache struct {
	cache *expirable.LRU[string, string]
}

// NewTokenCache creates a token cache with the given capacity and entry TTL
func NewTokenCache(maxSize int, ttl time.Duration) *TokenCache {
	return &TokenCache{
		cache: expirable.NewLRU[string, string](maxSize, nil, ttl),
	}
}

// Get returns the cached content ID for a token, if present
func (c *TokenCache) Get(token string) (string, bool) {
	contentID, ok := c.cache.Get(token)
	if ok {
		tokenCacheHitsTotal.Inc()
		return contentID, true
	}
	tokenCacheMissesTotal.Inc()
	return "", false
}

// Set caches a token resolution
func (c *TokenCache) Set(token, contentID string) {
	c.cache.Add(token, contentID)
}

// Remove drops a cached resolution
func (c *TokenCache) Remove(token string) {
	c.cache.Remove(token)
}
