package port

import (
	"context"
	"time"
)

// Cache is a read-through cache for query responses. Implementations store
// JSON-encoded values.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// ErrCacheMiss is returned by Get when the key is absent. Defined here so use
// cases need not import the cache backend.
type cacheMissError struct{}

func (cacheMissError) Error() string { return "cache miss" }

var ErrCacheMiss error = cacheMissError{}
