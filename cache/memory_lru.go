package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryLRU is the fallback tier: a strict-LRU, capacity-bounded
// in-process cache. Eviction is handled entirely by golang-lru/v2; TTL
// expiry is checked on read.
type MemoryLRU struct {
	mu  sync.Mutex
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

// NewMemoryLRU builds a MemoryLRU bounded at capacity entries.
func NewMemoryLRU(capacity int) *MemoryLRU {
	c, _ := lru.New[string, memoryEntry](capacity)
	return &MemoryLRU{lru: c, now: time.Now}
}

func (m *MemoryLRU) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expires) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryLRU) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(key, memoryEntry{value: value, expires: m.now().Add(ttl)})
	return nil
}

var _ ResponseCache = (*MemoryLRU)(nil)
