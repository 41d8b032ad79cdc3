package cache

import (
	"context"
	"time"

	"github.com/matzehuels/stackforge/pkg/observability"
)

// Instrumented reports cache traffic to observability.Cache() hooks.
type Instrumented struct {
	Cache
	keyType string
}

// Instrument wraps c so every Get and Set is reported under keyType
// (e.g. "manifest" or "plan").
func Instrument(c Cache, keyType string) *Instrumented {
	return &Instrumented{Cache: c, keyType: keyType}
}

// Get implements Cache.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, hit, err := i.Cache.Get(ctx, key)
	if err == nil {
		if hit {
			observability.Cache().OnCacheHit(ctx, i.keyType)
		} else {
			observability.Cache().OnCacheMiss(ctx, i.keyType)
		}
	}
	return data, hit, err
}

// Set implements Cache.
func (i *Instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := i.Cache.Set(ctx, key, data, ttl)
	if err == nil {
		observability.Cache().OnCacheSet(ctx, i.keyType, len(data))
	}
	return err
}

// Clear forwards to the wrapped cache when it supports clearing.
func (i *Instrumented) Clear(ctx context.Context) error {
	_, err := Clear(ctx, i.Cache)
	return err
}
