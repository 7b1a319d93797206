// Package dedup suppresses replays of identical inbound messages within a
// TTL window, keyed on (provider, peer, messageId, sessionKey).
package dedup

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry identifies one inbound message for dedup purposes.
type Entry struct {
	Provider      string
	OriginatingPeer string
	MessageID     string
	SessionKey    string
}

func (e Entry) key() string {
	return e.Provider + "|" + e.OriginatingPeer + "|" + e.MessageID + "|" + e.SessionKey
}

// Clock returns the current time; injected for testability.
type Clock func() time.Time

// Cache is a bounded LRU with a fixed per-entry TTL. It is safe for
// concurrent use. Entries with a missing MessageID always bypass dedup.
type Cache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   Clock
}

// DefaultCapacity is the bounded LRU size (>=1024 entries).
// Allocate generously so the TTL, not eviction, is the dominant expiry path.
const DefaultCapacity = 8192

// DefaultTTL is the fixed dedup window.
const DefaultTTL = 60 * time.Second

// New builds a Cache with the given capacity, TTL, and clock. A nil clock
// defaults to time.Now.
func New(capacity int, ttl time.Duration, now Clock) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	c, _ := lru.New[string, time.Time](capacity)
	return &Cache{cache: c, ttl: ttl, now: now}
}

// ShouldSkip reports whether entry was already seen within the TTL window.
// On first sight it records (key, now) and returns false. On a repeat
// within TTL it returns true without updating the recorded time (so the
// TTL window does not reset on every replay). Entries with an empty
// MessageID always return false and are never recorded.
func (c *Cache) ShouldSkip(_ context.Context, e Entry) bool {
	if e.MessageID == "" {
		return false
	}

	key := e.key()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seenAt, ok := c.cache.Get(key); ok {
		if now.Sub(seenAt) < c.ttl {
			return true
		}
		// TTL expired: treat as a fresh sighting.
	}

	c.cache.Add(key, now)
	return false
}
