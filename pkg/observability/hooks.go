// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup
// to receive events about registry mutations, compositions, and cache operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// The [tracing] subpackage backs the composition hooks with OpenTelemetry spans.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCompositionHooks(tracing.NewCompositionHooks(provider.Tracer()))
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	ctx = observability.Composition().OnUnitStart(ctx, runID, id)
//	// ... run the unit ...
//	observability.Composition().OnUnitComplete(ctx, runID, id, success, duration, err)
//
// [tracing]: github.com/matzehuels/stackforge/pkg/observability/tracing
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Registry Hooks
// =============================================================================

// RegistryHooks receives events from the generator registry.
type RegistryHooks interface {
	OnRegistered(ctx context.Context, id, version string)
	OnUnregistered(ctx context.Context, id string)

	// OnResolve fires after a ResolveDependencies call; count is the number
	// of descriptors in the resolved order.
	OnResolve(ctx context.Context, id string, count int, duration time.Duration, err error)
}

// =============================================================================
// Composition Hooks
// =============================================================================

// CompositionHooks receives events from the composition engine.
//
// The Start methods return a context that the engine threads into the
// matching Complete call and into nested work, so implementations can attach
// spans or timers to it.
type CompositionHooks interface {
	OnCompositionStart(ctx context.Context, runID, name, strategy string, refs int) context.Context
	OnCompositionComplete(ctx context.Context, runID, state string, duration time.Duration, err error)

	OnUnitStart(ctx context.Context, runID, id string) context.Context
	OnUnitComplete(ctx context.Context, runID, id string, success bool, duration time.Duration, err error)

	// OnRollback records one replayed compensating action.
	OnRollback(ctx context.Context, runID, action, target string, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopRegistryHooks is a no-op implementation of RegistryHooks.
type NoopRegistryHooks struct{}

func (NoopRegistryHooks) OnRegistered(context.Context, string, string)                 {}
func (NoopRegistryHooks) OnUnregistered(context.Context, string)                       {}
func (NoopRegistryHooks) OnResolve(context.Context, string, int, time.Duration, error) {}

// NoopCompositionHooks is a no-op implementation of CompositionHooks.
type NoopCompositionHooks struct{}

func (NoopCompositionHooks) OnCompositionStart(ctx context.Context, _, _, _ string, _ int) context.Context {
	return ctx
}
func (NoopCompositionHooks) OnCompositionComplete(context.Context, string, string, time.Duration, error) {
}
func (NoopCompositionHooks) OnUnitStart(ctx context.Context, _, _ string) context.Context { return ctx }
func (NoopCompositionHooks) OnUnitComplete(context.Context, string, string, bool, time.Duration, error) {
}
func (NoopCompositionHooks) OnRollback(context.Context, string, string, string, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	registryHooks    RegistryHooks    = NoopRegistryHooks{}
	compositionHooks CompositionHooks = NoopCompositionHooks{}
	cacheHooks       CacheHooks       = NoopCacheHooks{}
	hooksMu          sync.RWMutex
)

// SetRegistryHooks registers custom registry hooks.
// This should be called once at application startup.
func SetRegistryHooks(h RegistryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		registryHooks = h
	}
}

// SetCompositionHooks registers custom composition hooks.
// This should be called once at application startup before any composition runs.
func SetCompositionHooks(h CompositionHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		compositionHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Registry returns the registered registry hooks.
func Registry() RegistryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return registryHooks
}

// Composition returns the registered composition hooks.
func Composition() CompositionHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return compositionHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	registryHooks = NoopRegistryHooks{}
	compositionHooks = NoopCompositionHooks{}
	cacheHooks = NoopCacheHooks{}
}
