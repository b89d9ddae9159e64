package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheTTL is the memoization window (spec.md §4.7: "default 5
// min").
const DefaultCacheTTL = 5 * time.Minute

const defaultCacheCapacity = 10_000

type cacheEntry struct {
	version string
	decision Decision
	expires  time.Time
}

// Cache memoizes Engine.Evaluate results by (policy_set version,
// stable-hash of context). Entries expire on TTL or on version change,
// whichever is sooner; a hit is defined to be indistinguishable from a
// freshly computed miss, so Cache never stores anything beyond the
// Decision itself.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	lru *lru.Cache[string, cacheEntry]
	now func() time.Time
}

// NewCache builds a Cache with the given TTL and LRU capacity, reusing
// hashicorp/golang-lru/v2 for bounded-memory eviction the same way the
// response cache's memory tier does.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	c, _ := lru.New[string, cacheEntry](capacity)
	return &Cache{ttl: ttl, lru: c, now: time.Now}
}

// Get returns the memoized decision for (version, ctx) if present,
// unexpired, and recorded against the given version.
func (c *Cache) Get(version string, ctx Context) (Decision, bool) {
	key := stableHash(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		return Decision{}, false
	}
	if entry.version != version || c.now().After(entry.expires) {
		c.lru.Remove(key)
		return Decision{}, false
	}
	return entry.decision, true
}

// Put memoizes d for (version, ctx).
func (c *Cache) Put(version string, ctx Context, d Decision) {
	key := stableHash(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{version: version, decision: d, expires: c.now().Add(c.ttl)})
}

// stableHash produces a deterministic digest of a Context: claims, roles,
// and variables are sorted before hashing so map iteration order never
// affects the key.
func stableHash(ctx Context) string {
	var b strings.Builder

	claimKeys := make([]string, 0, len(ctx.Claims))
	for k := range ctx.Claims {
		claimKeys = append(claimKeys, k)
	}
	sort.Strings(claimKeys)
	for _, k := range claimKeys {
		b.WriteString("c:")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ctx.Claims[k])
		b.WriteByte(';')
	}

	roles := make([]string, len(ctx.Roles))
	copy(roles, ctx.Roles)
	sort.Strings(roles)
	for _, r := range roles {
		b.WriteString("r:")
		b.WriteString(r)
		b.WriteByte(';')
	}

	varKeys := make([]string, 0, len(ctx.Variables))
	for k := range ctx.Variables {
		varKeys = append(varKeys, k)
	}
	sort.Strings(varKeys)
	for _, k := range varKeys {
		b.WriteString("v:")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ctx.Variables[k])
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
