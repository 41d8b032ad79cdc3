package unit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackforge/pkg/registry"
)

// Factory builds the unit for a descriptor.
type Factory interface {
	Unit(d *registry.Descriptor) (Unit, error)
}

// Config is shared by every runtime in a table.
type Config struct {
	WorkDir string        // directory units run in; "" means the process cwd
	Env     []string      // extra environment for external processes
	Timeout time.Duration // per-invocation limit; 0 means none
	Logger  *log.Logger
}

// Runtime builds units for descriptors that name it.
type Runtime struct {
	Name string
	New  func(d *registry.Descriptor, cfg Config) (Unit, error)

	// Undo reverses a command a unit of this runtime reported. Nil means
	// commands of this runtime cannot be undone.
	Undo func(ctx context.Context, command, inverse string, cfg Config) error
}

// DefaultRuntime is used for descriptors that leave Runtime empty.
const DefaultRuntime = "shell"

// Runtimes is a Factory backed by a table of named runtimes. Units bound
// to a generator id take precedence over the descriptor's runtime.
type Runtimes struct {
	mu       sync.RWMutex
	cfg      Config
	runtimes map[string]*Runtime
	bound    map[string]Unit
}

// NewRuntimes returns a table holding the built-in runtimes.
func NewRuntimes(cfg Config) *Runtimes {
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	r := &Runtimes{
		cfg:      cfg,
		runtimes: make(map[string]*Runtime),
		bound:    make(map[string]Unit),
	}
	r.Register(Shell())
	return r
}

// Config returns the shared runtime configuration.
func (r *Runtimes) Config() Config { return r.cfg }

// Register adds or replaces a runtime.
func (r *Runtimes) Register(rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[rt.Name] = rt
}

// Bind serves u for the generator id regardless of its runtime.
func (r *Runtimes) Bind(id string, u Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[id] = u
}

// Lookup returns the named runtime.
func (r *Runtimes) Lookup(name string) (*Runtime, bool) {
	if name == "" {
		name = DefaultRuntime
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[name]
	return rt, ok
}

// Names returns the registered runtime names, sorted.
func (r *Runtimes) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runtimes))
	for n := range r.runtimes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Unit implements Factory.
func (r *Runtimes) Unit(d *registry.Descriptor) (Unit, error) {
	r.mu.RLock()
	u, ok := r.bound[d.ID]
	r.mu.RUnlock()
	if ok {
		return u, nil
	}

	rt, ok := r.Lookup(d.Runtime)
	if !ok {
		return nil, fmt.Errorf("generator %s: unknown runtime %q (available: %s)", d.ID, d.Runtime, strings.Join(r.Names(), ", "))
	}
	return rt.New(d, r.cfg)
}

// Undo reverses command through the named runtime.
func (r *Runtimes) Undo(ctx context.Context, runtime, command, inverse string) error {
	rt, ok := r.Lookup(runtime)
	if !ok || rt.Undo == nil {
		return fmt.Errorf("runtime %q cannot undo commands", runtime)
	}
	return rt.Undo(ctx, command, inverse, r.cfg)
}

// CanUndo reports whether the named runtime reverses commands.
func (r *Runtimes) CanUndo(runtime string) bool {
	rt, ok := r.Lookup(runtime)
	return ok && rt.Undo != nil
}
