package firewall

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	dnsCacheTTL      = 300 * time.Second
	dnsCacheCapacity = 1024
)

type dnsCacheEntry struct {
	ip         string
	insertedAt time.Time
}

// dnsCache is a bounded host→IP cache. Lookups snapshot an immutable map
// pointer and never block; inserts are serialized and copy-on-write, with
// oldest-first eviction once the entry count exceeds dnsCacheCapacity —
// reads stay lock-free while inserts are exclusively mutated.
type dnsCache struct {
	snapshot atomic.Pointer[map[string]dnsCacheEntry]
	mu       sync.Mutex
}

func newDNSCache() *dnsCache {
	c := &dnsCache{}
	empty := make(map[string]dnsCacheEntry)
	c.snapshot.Store(&empty)
	return c
}

// get returns the cached IP for host if present and not expired.
func (c *dnsCache) get(host string) (string, bool) {
	m := *c.snapshot.Load()
	entry, ok := m[host]
	if !ok {
		return "", false
	}
	if time.Since(entry.insertedAt) > dnsCacheTTL {
		return "", false
	}
	return entry.ip, true
}

// insert records host → ip, evicting the oldest entry first if the cache
// would otherwise exceed its capacity bound.
func (c *dnsCache) insert(host, ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := *c.snapshot.Load()
	next := make(map[string]dnsCacheEntry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[host] = dnsCacheEntry{ip: ip, insertedAt: time.Now()}

	if len(next) > dnsCacheCapacity {
		var oldestKey string
		var oldestAt time.Time
		first := true
		for k, v := range next {
			if first || v.insertedAt.Before(oldestAt) {
				oldestKey, oldestAt, first = k, v.insertedAt, false
			}
		}
		delete(next, oldestKey)
	}

	c.snapshot.Store(&next)
}

func (c *dnsCache) len() int {
	return len(*c.snapshot.Load())
}
