package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultTemplate returns a commented config file matching Defaults.
func DefaultTemplate() string {
	return `# stackforge configuration
# Environment variables override these values: STACKFORGE_<SECTION>_<KEY>,
# e.g. STACKFORGE_STORE_BACKEND=sqlite.

# Directory holding generator manifests (one subdirectory per generator).
generators_dir: generators

# Directory generated files are written to. Empty means the current directory.
work_dir: ""

store:
  # file, sqlite, mongo or none
  backend: file
  path: .stackforge/registry
  mongo_uri: ""
  mongo_database: stackforge

cache:
  # file, memory, redis or none
  backend: file
  # Empty means ~/.cache/stackforge
  dir: ""
  redis_addr: ""
  ttl: 24h

log:
  # debug, info, warn or error
  level: info

compose:
  # Maximum specs composed concurrently by "compose run" with several files.
  batch_limit: 4
  unit_timeout: 10m
  # Reload manifests when generators_dir changes (serve only).
  watch: false

tracing:
  enabled: false
  # none, file, stdout or otlp
  exporter: file
  file_path: ""
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
  service_name: stackforge

api:
  addr: 127.0.0.1:8420
`
}

// WriteDefault writes DefaultTemplate to path, creating parent
// directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultTemplate()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
