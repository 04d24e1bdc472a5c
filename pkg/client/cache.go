package client

import (
	"sync"
	"time"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// AddressCache holds decoded device addresses keyed by device id.
// Entries expire after the TTL and all of them are dropped when the
// server's device list verifier changes.
type AddressCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	entries map[blockaddr.DeviceID]cacheEntry
}

type cacheEntry struct {
	addr       blockaddr.DeviceAddr
	expiration time.Time
}

// NewAddressCache creates a cache of at most maxSize entries.
func NewAddressCache(maxSize int, ttl time.Duration) *AddressCache {
	return &AddressCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[blockaddr.DeviceID]cacheEntry),
	}
}

// Get returns the cached address for id.
func (c *AddressCache) Get(id blockaddr.DeviceID) (blockaddr.DeviceAddr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return blockaddr.DeviceAddr{}, false
	}
	if !c.now().Before(e.expiration) {
		delete(c.entries, id)
		return blockaddr.DeviceAddr{}, false
	}
	return e.addr, true
}

// Put stores addr for id. When full, expired entries go first, then the
// one closest to expiring.
func (c *AddressCache) Put(id blockaddr.DeviceID, addr blockaddr.DeviceAddr) {
	if c.maxSize <= 0 || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.entries[id]; !ok && len(c.entries) >= c.maxSize {
		c.evict(now)
	}
	c.entries[id] = cacheEntry{addr: addr, expiration: now.Add(c.ttl)}
}

func (c *AddressCache) evict(now time.Time) {
	var oldest blockaddr.DeviceID
	var oldestExp time.Time
	first := true
	for id, e := range c.entries {
		if !now.Before(e.expiration) {
			delete(c.entries, id)
			continue
		}
		if first || e.expiration.Before(oldestExp) {
			oldest, oldestExp, first = id, e.expiration, false
		}
	}
	if len(c.entries) >= c.maxSize && !first {
		delete(c.entries, oldest)
	}
}

// Invalidate drops the entry for id.
func (c *AddressCache) Invalidate(id blockaddr.DeviceID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *AddressCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *AddressCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
