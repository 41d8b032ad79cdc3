// Package storage persists registered generator descriptors between runs.
//
// The registry's in-memory state is the source of truth while a process
// runs. A [Store] mirrors every registration and removal and is read back
// once at start-up with [Rehydrate].
//
// Three backends are provided:
//   - [FileStore]: one JSON document per descriptor in a directory
//   - [SQLiteStore]: a single table in an embedded SQLite database
//   - [MongoStore]: a MongoDB collection keyed by descriptor id
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/matzehuels/stackforge/pkg/registry"
)

// Store loads and saves descriptors keyed by id.
type Store interface {
	// Load returns every stored descriptor.
	Load(ctx context.Context) ([]*registry.Descriptor, error)
	// Save inserts or replaces the descriptor with d.ID.
	Save(ctx context.Context, d *registry.Descriptor) error
	// Delete removes id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// Close releases the store's resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendNone   = "none"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("storage: unknown backend")

// Options selects and configures a backend.
type Options struct {
	Backend       string
	Path          string // directory for file, database file for sqlite
	MongoURI      string
	MongoDatabase string
}

// Open creates the store named by opts.Backend. BackendNone returns nil,
// nil: the registry then runs without persistence.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendFile:
		s, err := NewFileStore(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMongo:
		s, err := NewMongoStore(ctx, MongoConfig{URI: opts.MongoURI, Database: opts.MongoDatabase})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}

// Rehydrate reads every stored descriptor and restores it into reg without
// writing it back. Descriptors are restored in id order; the registry
// links dependencies regardless of order and still enforces its
// invariants, so a store edited by hand cannot introduce a cycle.
func Rehydrate(ctx context.Context, store Store, reg *registry.Registry) (int, error) {
	if store == nil {
		return 0, nil
	}
	ds, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load descriptors: %w", err)
	}
	if err := reg.Restore(ctx, ds); err != nil {
		return 0, fmt.Errorf("restore descriptors: %w", err)
	}
	return len(ds), nil
}
