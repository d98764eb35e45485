package cache

import (
	"context"
	"errors"

	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store adapts a Cache to storage.Store so persisted state stores can live
// in Redis. Entries are written without expiry.
type Store struct {
	cache  Cache
	prefix string
}

// NewStore wraps c, namespacing keys under prefix
func NewStore(c Cache, prefix string) *Store {
	return &Store{cache: c, prefix: prefix}
}

// Get retrieves a value, mapping a cache miss to storage.ErrNotFound
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.cache.Get(ctx, s.prefix+key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	return v, err
}

// Set stores a value without expiry
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.cache.Set(ctx, s.prefix+key, value, redis.KeepTTL)
}

// Delete removes a value
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, s.prefix+key)
}

// Close closes the underlying cache
func (s *Store) Close() error {
	return s.cache.Close()
}
