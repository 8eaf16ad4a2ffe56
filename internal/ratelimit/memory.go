package ratelimit

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 5 * time.Minute

// MemoryLimiter counts requests in a go-cache instance. Each counter expires
// with its window.
type MemoryLimiter struct {
	cache *gocache.Cache
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return true
	}
	for {
		// Add only succeeds for a new window.
		if err := m.cache.Add(key, 1, window); err == nil {
			return true
		}
		n, err := m.cache.IncrementInt(key, 1)
		if err != nil {
			// Expired between Add and Increment; start a new window.
			continue
		}
		return n <= limit
	}
}
