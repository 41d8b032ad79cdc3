package cache

import (
	"context"
	"fmt"
)

// Backend names accepted by New.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Options selects and configures a backend for New.
type Options struct {
	Backend   string // file, memory, redis or none
	Dir       string // FileCache root
	RedisAddr string
}

// New builds the cache named by opts.Backend. An empty backend means none.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case BackendFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("file cache requires a directory")
		}
		c, err := NewFileCache(opts.Dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendMemory:
		return NewMemoryCache(DefaultExpiration, DefaultCleanupInterval), nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, RedisConfig{Addr: opts.RedisAddr})
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone, "":
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
