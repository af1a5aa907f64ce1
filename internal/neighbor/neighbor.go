// Package neighbor remembers the hardware addresses learned from ARP
// traffic addressed to the node.
package neighbor

import (
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/ethmqtt/internal/core"
)

const (
	DefaultTTL     = 5 * time.Minute
	defaultCleanup = time.Minute
)

// Entry is one learned mapping.
type Entry struct {
	IP        core.IPv4Addr     `json:"ip"`
	MAC       core.HardwareAddr `json:"mac"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Cache maps IPv4 addresses to hardware addresses with expiry. It is safe
// for concurrent use.
type Cache struct {
	entries *cache.Cache // IPv4Addr.String() → core.HardwareAddr
}

// New creates a cache. Non-positive durations fall back to the defaults.
func New(ttl, cleanup time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanup <= 0 {
		cleanup = defaultCleanup
	}
	return &Cache{entries: cache.New(ttl, cleanup)}
}

// Learn records or refreshes ip → mac. Zero addresses are ignored.
func (c *Cache) Learn(ip core.IPv4Addr, mac core.HardwareAddr) {
	if ip.IsZero() || mac.IsZero() {
		return
	}
	c.entries.SetDefault(ip.String(), mac)
}

// Lookup returns the unexpired address for ip.
func (c *Cache) Lookup(ip core.IPv4Addr) (core.HardwareAddr, bool) {
	v, found := c.entries.Get(ip.String())
	if !found {
		return core.HardwareAddr{}, false
	}
	return v.(core.HardwareAddr), true
}

// Forget removes ip.
func (c *Cache) Forget(ip core.IPv4Addr) {
	c.entries.Delete(ip.String())
}

// Entries lists the unexpired mappings ordered by address.
func (c *Cache) Entries() []Entry {
	items := c.entries.Items()
	out := make([]Entry, 0, len(items))
	for key, item := range items {
		ip, err := core.ParseIPv4Addr(key)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			IP:        ip,
			MAC:       item.Object.(core.HardwareAddr),
			ExpiresAt: time.Unix(0, item.Expiration),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].IP, out[j].IP
		return a.Addr().Less(b.Addr())
	})
	return out
}

// Len returns the number of stored mappings, including expired ones not yet
// cleaned up.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
