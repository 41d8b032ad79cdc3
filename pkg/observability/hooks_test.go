package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	r := NoopRegistryHooks{}
	r.OnRegistered(ctx, "model", "1.0.0")
	r.OnUnregistered(ctx, "model")
	r.OnResolve(ctx, "api", 3, time.Millisecond, nil)

	c := NoopCompositionHooks{}
	if got := c.OnCompositionStart(ctx, "run", "app", "sequential", 2); got != ctx {
		t.Error("OnCompositionStart should return the given context")
	}
	if got := c.OnUnitStart(ctx, "run", "model"); got != ctx {
		t.Error("OnUnitStart should return the given context")
	}
	c.OnUnitComplete(ctx, "run", "model", true, time.Second, nil)
	c.OnRollback(ctx, "run", "file-delete", "a.go", nil)
	c.OnCompositionComplete(ctx, "run", "succeeded", time.Second, nil)

	k := NoopCacheHooks{}
	k.OnCacheHit(ctx, "manifest")
	k.OnCacheMiss(ctx, "manifest")
	k.OnCacheSet(ctx, "manifest", 1024)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Registry().(NoopRegistryHooks); !ok {
		t.Error("Registry() should return NoopRegistryHooks by default")
	}
	if _, ok := Composition().(NoopCompositionHooks); !ok {
		t.Error("Composition() should return NoopCompositionHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}

	customRegistry := &testRegistryHooks{}
	SetRegistryHooks(customRegistry)
	if Registry() != customRegistry {
		t.Error("SetRegistryHooks should set custom hooks")
	}

	customComposition := &testCompositionHooks{}
	SetCompositionHooks(customComposition)
	if Composition() != customComposition {
		t.Error("SetCompositionHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	Reset()
	if _, ok := Composition().(NoopCompositionHooks); !ok {
		t.Error("Reset() should restore NoopCompositionHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testCompositionHooks{}
	SetCompositionHooks(custom)

	SetCompositionHooks(nil)

	if Composition() != custom {
		t.Error("SetCompositionHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testRegistryHooks struct{ NoopRegistryHooks }
type testCompositionHooks struct{ NoopCompositionHooks }
type testCacheHooks struct{ NoopCacheHooks }
