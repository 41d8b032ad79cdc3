package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/storage"
)

// isolate points lookups at empty directories so a developer's own config
// cannot leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, used, err := Load(New(), "")
	require.NoError(t, err)
	require.Empty(t, used)
	require.Equal(t, Defaults(), cfg)
}

func TestTemplateMatchesDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, used, err := Load(New(), path)
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, Defaults(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	require.Error(t, WriteDefault(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "debug")
}

func TestLoadLocalFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.MkdirAll(".stackforge", 0o750))
	require.NoError(t, os.WriteFile(LocalPath, []byte(`
store:
  backend: sqlite
  path: forge.db
cache:
  ttl: 90m
compose:
  batch_limit: 8
`), 0o600))

	cfg, used, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, LocalPath, used)
	require.Equal(t, storage.BackendSQLite, cfg.Store.Backend)
	require.Equal(t, "forge.db", cfg.Store.Path)
	require.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 8, cfg.Compose.BatchLimit)
	require.Equal(t, Defaults().API, cfg.API)
}

func TestLoadUserFile(t *testing.T) {
	dir := isolate(t)
	userDir := filepath.Join(dir, ".config", "stackforge")
	require.NoError(t, os.MkdirAll(userDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o600))

	cfg, used, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(userDir, "config.yaml"), used)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  addr: 0.0.0.0:1\n"), 0o600))
	t.Setenv("STACKFORGE_API_ADDR", "127.0.0.1:9999")
	t.Setenv("STACKFORGE_CACHE_BACKEND", "memory")

	cfg, _, err := Load(New(), path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.API.Addr)
	require.Equal(t, cache.BackendMemory, cfg.Cache.Backend)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, _, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown store", func(c *Config) { c.Store.Backend = "s3" }, true},
		{"sqlite without path", func(c *Config) { c.Store.Backend = storage.BackendSQLite; c.Store.Path = "" }, true},
		{"mongo without uri", func(c *Config) { c.Store.Backend = storage.BackendMongo }, true},
		{"mongo with uri", func(c *Config) {
			c.Store.Backend = storage.BackendMongo
			c.Store.MongoURI = "mongodb://localhost:27017"
		}, false},
		{"no store", func(c *Config) { c.Store.Backend = storage.BackendNone; c.Store.Path = "" }, false},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"redis without addr", func(c *Config) { c.Cache.Backend = cache.BackendRedis }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"negative batch limit", func(c *Config) { c.Compose.BatchLimit = -1 }, true},
		{"bad exporter when enabled", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, true},
		{"bad exporter when disabled", func(c *Config) { c.Tracing.Exporter = "zipkin" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCacheOptions(t *testing.T) {
	cfg := Defaults()
	if got := cfg.CacheOptions("/fallback").Dir; got != "/fallback" {
		t.Errorf("Dir = %q, want /fallback", got)
	}
	cfg.Cache.Dir = "/explicit"
	if got := cfg.CacheOptions("/fallback").Dir; got != "/explicit" {
		t.Errorf("Dir = %q, want /explicit", got)
	}
}
