package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// TokenCache remembers verified token → user id mappings so reconnecting
// clients skip signature verification on the hot path.
type TokenCache struct {
	cache *cache.Cache
}

func NewTokenCache() *TokenCache {
	// Default expiration of 1 hour, purge sweep every 10 minutes
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &TokenCache{cache: c}
}

func (r *TokenCache) Save(token, userId string) {
	r.cache.Set(token, userId, cache.DefaultExpiration)
}

func (r *TokenCache) Get(token string) (string, bool) {
	if x, found := r.cache.Get(token); found {
		return x.(string), true
	}
	return "", false
}
