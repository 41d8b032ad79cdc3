package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/matzehuels/stackforge/pkg/registry"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generators (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	document TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dependencies (
	generator_id TEXT NOT NULL,
	depends_on_id TEXT NOT NULL,
	version_range TEXT NOT NULL DEFAULT '',
	required INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (generator_id, depends_on_id),
	FOREIGN KEY (generator_id) REFERENCES generators(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on_id);
`

// SQLiteStore keeps descriptors in an embedded SQLite database. The full
// descriptor is stored as a JSON document; dependency edges are also
// written to their own table so they can be queried directly.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: sqlite store needs a database path")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]*registry.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document FROM generators ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Descriptor
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var d registry.Descriptor
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			return nil, fmt.Errorf("decode generator %s: %w", id, err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, d *registry.Descriptor) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO generators (id, name, version, document, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			document = excluded.document,
			updated_at = CURRENT_TIMESTAMP`,
		d.ID, d.Name, d.Version, string(doc))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE generator_id = ?`, d.ID); err != nil {
		return err
	}
	for _, dep := range d.Dependencies {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO dependencies (generator_id, depends_on_id, version_range, required) VALUES (?, ?, ?, ?)`,
			d.ID, dep.ID, dep.Range, dep.Required)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE generator_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM generators WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Dependents returns the stored ids that declare a dependency on id.
func (s *SQLiteStore) Dependents(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT generator_id FROM dependencies WHERE depends_on_id = ? ORDER BY generator_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
