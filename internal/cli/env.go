package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/manifest"
	"github.com/matzehuels/stackforge/pkg/observability"
	"github.com/matzehuels/stackforge/pkg/observability/tracing"
	"github.com/matzehuels/stackforge/pkg/registry"
	"github.com/matzehuels/stackforge/pkg/storage"
	"github.com/matzehuels/stackforge/pkg/unit"
)

// env is the set of components a command works with, built from config.
type env struct {
	logger   *log.Logger
	cache    cache.Cache
	store    storage.Store
	loader   *manifest.Loader
	reg      *registry.Registry
	units    *unit.Runtimes
	composer *compose.Composer
	events   *events.Broker[compose.Event]
	tracing  *tracing.Provider
}

// open builds the registry and the composer. The registry is rehydrated
// from the configured store and falls back to the manifest directory for
// generators it does not hold.
func (c *CLI) open(ctx context.Context) (*env, error) {
	cfg := c.cfg
	logger := loggerFromContext(ctx)
	e := &env{logger: logger, events: events.NewBroker[compose.Event]()}

	cc, err := c.newCache(ctx)
	if err != nil {
		return nil, err
	}
	e.cache = cc

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		e.Close(ctx)
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	e.store = store

	// Manifest and plan entries are only meaningful for one generators
	// directory.
	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), scope(cfg.GeneratorsDir))

	e.loader = manifest.NewLoader(manifest.Options{
		Dir:    cfg.GeneratorsDir,
		Cache:  e.cache,
		Keyer:  keyer,
		TTL:    cfg.Cache.TTL,
		Logger: logger,
	})

	opts := registry.Options{Logger: logger, Loader: e.loader}
	if store != nil {
		opts.Persister = store
	}
	e.reg = registry.New(opts)

	n, err := storage.Rehydrate(ctx, store, e.reg)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	if n > 0 {
		logger.Debug("restored generators", "count", n, "store", cfg.Store.Backend)
	}

	e.units = unit.NewRuntimes(unit.Config{
		WorkDir: cfg.WorkDir,
		Timeout: cfg.Compose.UnitTimeout,
		Logger:  logger,
	})

	e.composer, err = compose.New(compose.Options{
		Resolver: e.reg,
		Factory:  e.units,
		Logger:   logger,
		Events:   e.events,
		WorkDir:  cfg.WorkDir,
		Cache:    e.cache,
		Keyer:    keyer,
		PlanTTL:  cfg.Cache.TTL,
	})
	if err != nil {
		e.Close(ctx)
		return nil, err
	}

	e.tracing, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		e.Close(ctx)
		return nil, fmt.Errorf("tracing: %w", err)
	}
	if e.tracing.Enabled() {
		observability.SetCompositionHooks(tracing.NewCompositionHooks(e.tracing.Tracer()))
	}
	return e, nil
}

// loadManifests registers every manifest below the generators directory.
// Invalid manifests are logged and skipped.
func (e *env) loadManifests(ctx context.Context) {
	added, err := manifest.Register(ctx, e.loader, e.reg)
	if err != nil {
		e.logger.Warn("some manifests were not registered", "dir", e.loader.Dir(), "error", err)
	}
	if len(added) > 0 {
		e.logger.Debug("registered manifests", "count", len(added), "dir", e.loader.Dir())
	}
}

// Close releases every component. It is safe on a partially built env.
func (e *env) Close(ctx context.Context) {
	if e.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.tracing.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("tracing shutdown failed", "error", err)
		}
		cancel()
		if e.tracing.Enabled() {
			observability.Reset()
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("closing store failed", "error", err)
		}
	}
	if e.cache != nil {
		_ = e.cache.Close()
	}
	e.events.Close()
}

// scope derives a short cache key prefix from the generators directory.
func scope(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return cache.Hash([]byte(dir))[:12] + ":"
}

func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	if c.noCache {
		return cache.NewNullCache(), nil
	}
	dir, _ := cacheDir()
	opts := c.cfg.CacheOptions(dir)
	if opts.Backend == cache.BackendFile && opts.Dir == "" {
		return cache.NewNullCache(), nil
	}
	cc, err := cache.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", c.cfg.Cache.Backend, err)
	}
	return cc, nil
}
