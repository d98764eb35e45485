package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a bounded in-process Cache used when Redis is not
// configured. Every entry shares the TTL given at construction; the ttl
// argument to Set is ignored.
type MemoryCache struct {
	lru    *expirable.LRU[string, []byte]
	mu     sync.RWMutex
	closed bool
}

// NewMemoryCache creates a cache holding at most size entries for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	v, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a value in the cache
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if err := m.check(); err != nil {
		return err
	}
	m.lru.Add(key, append([]byte(nil), value...))
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	if err := m.check(); err != nil {
		return err
	}
	m.lru.Remove(key)
	return nil
}

// DeletePrefix removes all keys starting with prefix
func (m *MemoryCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	deleted := 0
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) && m.lru.Remove(k) {
			deleted++
		}
	}
	return deleted, nil
}

// Ping reports whether the cache is open
func (m *MemoryCache) Ping(context.Context) error {
	return m.check()
}

// Close purges the cache and rejects further use
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.lru.Purge()
	return nil
}

func (m *MemoryCache) check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrCacheClosed
	}
	return nil
}
