// Package config provides configuration types, defaults and loading for
// stackforge.
//
// Configuration comes from, in increasing precedence: built-in defaults,
// a YAML config file, and STACKFORGE_* environment variables (dots become
// underscores, e.g. STACKFORGE_STORE_BACKEND).
//
// Config file lookup order when no explicit path is given:
//  1. .stackforge/config.yaml (current directory)
//  2. ~/.config/stackforge/config.yaml (user config)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/observability/tracing"
	"github.com/matzehuels/stackforge/pkg/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STACKFORGE"

// LocalPath is the project-local config file.
var LocalPath = filepath.Join(".stackforge", "config.yaml")

// Config is the full stackforge configuration.
type Config struct {
	GeneratorsDir string         `mapstructure:"generators_dir"`
	WorkDir       string         `mapstructure:"work_dir"`
	Store         StoreConfig    `mapstructure:"store"`
	Cache         CacheConfig    `mapstructure:"cache"`
	Log           LogConfig      `mapstructure:"log"`
	Compose       ComposeConfig  `mapstructure:"compose"`
	Tracing       tracing.Config `mapstructure:"tracing"`
	API           APIConfig      `mapstructure:"api"`
}

// StoreConfig selects where registered generators persist.
type StoreConfig struct {
	Backend       string `mapstructure:"backend"` // file, sqlite, mongo or none
	Path          string `mapstructure:"path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// CacheConfig selects the manifest and plan cache.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // file, memory, redis or none
	Dir       string        `mapstructure:"dir"`     // empty means the user cache dir
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ComposeConfig tunes composition runs.
type ComposeConfig struct {
	BatchLimit  int           `mapstructure:"batch_limit"`
	UnitTimeout time.Duration `mapstructure:"unit_timeout"`
	Watch       bool          `mapstructure:"watch"` // reload manifests on change in serve mode
}

// APIConfig configures `stackforge serve`.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		GeneratorsDir: "generators",
		Store: StoreConfig{
			Backend:       storage.BackendFile,
			Path:          filepath.Join(".stackforge", "registry"),
			MongoDatabase: "stackforge",
		},
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			TTL:     24 * time.Hour,
		},
		Log:     LogConfig{Level: "info"},
		Compose: ComposeConfig{BatchLimit: 4, UnitTimeout: 10 * time.Minute},
		Tracing: tracing.DefaultConfig(),
		API:     APIConfig{Addr: "127.0.0.1:8420"},
	}
}

// New returns a viper instance seeded with defaults and environment
// bindings. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("generators_dir", d.GeneratorsDir)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.mongo_uri", d.Store.MongoURI)
	v.SetDefault("store.mongo_database", d.Store.MongoDatabase)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("compose.batch_limit", d.Compose.BatchLimit)
	v.SetDefault("compose.unit_timeout", d.Compose.UnitTimeout)
	v.SetDefault("compose.watch", d.Compose.Watch)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("api.addr", d.API.Addr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the result. An explicit
// path must exist; otherwise the lookup order applies and a missing file
// leaves the defaults in place. It returns the config file used, if any.
func Load(v *viper.Viper, path string) (Config, string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(LocalPath); err == nil {
		v.SetConfigFile(LocalPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "stackforge"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

var (
	storeBackends = []string{storage.BackendFile, storage.BackendSQLite, storage.BackendMongo, storage.BackendNone}
	cacheBackends = []string{cache.BackendFile, cache.BackendMemory, cache.BackendRedis, cache.BackendNone}
	exporters     = []string{"none", "file", "stdout", "otlp"}
)

// Validate checks enumerated values and the settings each backend needs.
func (c Config) Validate() error {
	if !slices.Contains(storeBackends, c.Store.Backend) {
		return fmt.Errorf("store.backend: unknown backend %q (want one of %s)", c.Store.Backend, strings.Join(storeBackends, ", "))
	}
	if (c.Store.Backend == storage.BackendFile || c.Store.Backend == storage.BackendSQLite) && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
	}
	if c.Store.Backend == storage.BackendMongo && c.Store.MongoURI == "" {
		return fmt.Errorf("store.mongo_uri is required for the mongo backend")
	}
	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		return fmt.Errorf("cache.backend: unknown backend %q (want one of %s)", c.Cache.Backend, strings.Join(cacheBackends, ", "))
	}
	if c.Cache.Backend == cache.BackendRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required for the redis backend")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Compose.BatchLimit < 0 {
		return fmt.Errorf("compose.batch_limit must not be negative")
	}
	if c.Tracing.Enabled && !slices.Contains(exporters, c.Tracing.Exporter) {
		return fmt.Errorf("tracing.exporter: unknown exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// StorageOptions maps the store section onto storage.Open options.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.Store.Backend,
		Path:          c.Store.Path,
		MongoURI:      c.Store.MongoURI,
		MongoDatabase: c.Store.MongoDatabase,
	}
}

// CacheOptions maps the cache section onto cache.New options. dir is used
// when the config leaves cache.dir empty.
func (c Config) CacheOptions(dir string) cache.Options {
	if c.Cache.Dir != "" {
		dir = c.Cache.Dir
	}
	return cache.Options{Backend: c.Cache.Backend, Dir: dir, RedisAddr: c.Cache.RedisAddr}
}

// LogLevel parses the configured level, falling back to info.
func (c Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
