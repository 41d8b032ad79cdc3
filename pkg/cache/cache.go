// Package cache provides byte-level caching with pluggable backends.
//
// Manifests parsed by the loader and resolved execution plans are cached so
// repeated CLI invocations and API requests skip re-reading and re-resolving.
//
// # Backends
//
//   - [FileCache]: one JSON file per entry, for CLI usage across processes
//   - [MemoryCache]: in-process, backed by go-cache, for the API server
//   - [RedisCache]: shared across server instances
//   - [NullCache]: disables caching
//
// Wrap any backend with [Instrument] to report hits, misses and writes to
// the observability cache hooks.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
// A ttl of zero means the entry does not expire.
type Cache interface {
	// Get returns the stored bytes and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by caches that can drop every entry at once.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Clear empties c if the backend supports it and reports whether it did.
func Clear(ctx context.Context, c Cache) (bool, error) {
	cl, ok := c.(Clearer)
	if !ok {
		return false, nil
	}
	return true, cl.Clear(ctx)
}

// NullCache stores nothing and every Get misses. It backs the "none"
// backend and --no-cache. It is not a Clearer.
type NullCache struct{}

// NewNullCache returns a cache that stores nothing.
func NewNullCache() *NullCache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }

var _ Cache = (*NullCache)(nil)
