package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/registry"
)

// DefaultTTL bounds how long a parsed manifest stays cached. Keys include
// the file's modification time, so edits never serve stale data.
const DefaultTTL = 24 * time.Hour

// Loader reads generator manifests from a directory.
type Loader struct {
	dir    string
	cache  cache.Cache
	keyer  cache.Keyer
	ttl    time.Duration
	logger *log.Logger
}

// Options configures a Loader. Every field except Dir is optional.
type Options struct {
	Dir    string
	Cache  cache.Cache
	Keyer  cache.Keyer
	TTL    time.Duration
	Logger *log.Logger
}

// NewLoader creates a loader over opts.Dir. The directory need not exist
// yet; a missing directory simply holds no generators.
func NewLoader(opts Options) *Loader {
	c := opts.Cache
	if c == nil {
		c = cache.NewNullCache()
	}
	keyer := opts.Keyer
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Loader{
		dir:    opts.Dir,
		cache:  cache.Instrument(c, "manifest"),
		keyer:  keyer,
		ttl:    ttl,
		logger: logger,
	}
}

// Dir returns the manifest root directory.
func (l *Loader) Dir() string { return l.dir }

// Load implements registry.Loader. It returns nil, nil when id has no
// manifest directory.
func (l *Loader) Load(ctx context.Context, id string) (*registry.Descriptor, error) {
	if err := errors.ValidateGeneratorID(id); err != nil {
		return nil, err
	}
	file, ok := l.find(id)
	if !ok {
		return nil, nil
	}
	return l.LoadFile(ctx, file, id)
}

// find returns the first manifest file present in id's directory.
func (l *Loader) find(id string) (string, bool) {
	genDir := filepath.Join(l.dir, filepath.FromSlash(id))
	for _, name := range Filenames {
		p := filepath.Join(genDir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// LoadFile parses a single manifest. When wantID is non-empty the manifest
// must declare that id, or leave it blank to inherit it.
func (l *Loader) LoadFile(ctx context.Context, file, wantID string) (*registry.Descriptor, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "manifest %s", file)
	}
	if err := errors.ValidateManifestFilename(filepath.Base(file)); err != nil {
		return nil, err
	}

	key := l.keyer.ManifestKey(file, info.ModTime(), info.Size())
	if data, hit, err := l.cache.Get(ctx, key); err == nil && hit {
		var d registry.Descriptor
		if json.Unmarshal(data, &d) == nil {
			return &d, nil
		}
	}

	format, err := DetectFormat(file)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnsupported, err, "manifest %s", file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read manifest %s", file)
	}
	d, err := format.Decode(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "parse %s manifest %s", format.Type(), file)
	}

	if wantID != "" {
		if d.ID == "" {
			d.ID = wantID
		}
		if d.ID != wantID {
			return nil, errors.Validation("manifest %s declares id %q, expected %q", file, d.ID, wantID)
		}
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", file, err)
	}

	if encoded, err := json.Marshal(d); err == nil {
		if err := l.cache.Set(ctx, key, encoded, l.ttl); err != nil {
			l.logger.Debug("manifest cache write failed", "path", file, "error", err)
		}
	}
	l.logger.Debug("parsed manifest", "id", d.ID, "format", format.Type(), "path", file)
	return d, nil
}

// IDs lists the generator ids that have a manifest below the root,
// sorted. Namespaced ids are found one directory deep.
func (l *Loader) IDs() ([]string, error) {
	var ids []string
	err := filepath.WalkDir(l.dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == l.dir && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if !entry.IsDir() || p == l.dir {
			return nil
		}
		rel, err := filepath.Rel(l.dir, p)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if _, ok := l.find(id); ok && errors.ValidateGeneratorID(id) == nil {
			ids = append(ids, id)
		}
		if depth(id) >= 2 {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func depth(id string) int {
	n := 1
	for p := path.Dir(id); p != "."; p = path.Dir(p) {
		n++
	}
	return n
}

// LoadAll parses every manifest below the root, sorted by id. Manifests
// that fail to parse are reported in the returned error after the rest
// have been loaded.
func (l *Loader) LoadAll(ctx context.Context) ([]*registry.Descriptor, error) {
	ids, err := l.IDs()
	if err != nil {
		return nil, err
	}
	var (
		out  []*registry.Descriptor
		errs []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, err := l.Load(ctx, id)
		if err != nil {
			l.logger.Warn("skipping manifest", "id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, joinErrors(errs)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return fmt.Errorf("%d manifests failed to load: %w", len(errs), errs[0])
}

// Register loads every manifest and registers the descriptors not already
// present in reg. The registry links dependencies registered later, so
// directory order does not matter. It returns the ids that were added.
func Register(ctx context.Context, l *Loader, reg *registry.Registry) ([]string, error) {
	ds, loadErr := l.LoadAll(ctx)
	var added []string
	for _, d := range ds {
		if reg.Get(d.ID) != nil {
			continue
		}
		if err := reg.Register(ctx, d); err != nil {
			l.logger.Warn("manifest rejected", "id", d.ID, "error", err)
			if loadErr == nil {
				loadErr = err
			}
			continue
		}
		added = append(added, d.ID)
	}
	return added, loadErr
}
