package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache defines the cache interface used for hierarchy lookups
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = fmt.Errorf("cache miss")

// HierarchyKey builds a cache key for a hierarchy record
func HierarchyKey(kind string, id uint) string {
	return fmt.Sprintf("hierarchy:%s:%d", kind, id)
}
