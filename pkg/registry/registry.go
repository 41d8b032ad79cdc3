// Package registry keeps the set of known generators consistent and answers
// dependency queries over them.
//
// The registry combines a descriptor store (id → descriptor) with a
// dependency graph (pkg/dag) and enforces three invariants under any
// registration order:
//
//   - no cycles: a registration that would close a cycle is rejected
//   - no conflicts: conflict lists are checked in both directions
//   - no dangling dependents: a generator cannot be removed while others need it
//
// [Registry.ResolveDependencies] returns a generator's transitive
// dependencies in topological order, dependencies first, without duplicates.
//
// A Registry is safe for concurrent use. Mutations take a write lock;
// queries take a read lock. Lifecycle signals go to an optional
// events.Broker and to the observability registry hooks.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"

	"github.com/matzehuels/stackforge/pkg/dag"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/observability"
)

// Loader fetches descriptors the registry does not hold, e.g. from a
// directory of manifests. Load returns nil, nil when id is unknown.
type Loader interface {
	Load(ctx context.Context, id string) (*Descriptor, error)
}

// Persister mirrors registry mutations into durable storage.
type Persister interface {
	Save(ctx context.Context, d *Descriptor) error
	Delete(ctx context.Context, id string) error
}

// Options configures a Registry. Every field is optional.
type Options struct {
	Logger    *log.Logger
	Loader    Loader
	Persister Persister
	Events    *events.Broker[Event]

	// MemoTTL bounds how long resolved dependency orders are memoized.
	// Mutations always invalidate the memo. Defaults to 10 minutes.
	MemoTTL time.Duration
}

// Registry is the generator descriptor store plus its dependency graph.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	graph       *dag.DAG

	memo       *gocache.Cache
	generation atomic.Uint64

	logger    *log.Logger
	loader    Loader
	persister Persister
	events    *events.Broker[Event]
}

// New creates an empty registry.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	ttl := opts.MemoTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		graph:       dag.New(nil),
		memo:        gocache.New(ttl, 2*ttl),
		logger:      logger,
		loader:      opts.Loader,
		persister:   opts.Persister,
		events:      opts.Events,
	}
}

// Register validates d and adds it to the registry.
//
// It fails with a VALIDATION error for malformed descriptors or an id that
// is already registered, a CONFLICT error when d conflicts with a registered
// descriptor in either direction, and a CIRCULAR_DEPENDENCY error when d's
// dependencies lead back to d through registered descriptors. On failure
// the registry is unchanged.
func (r *Registry) Register(ctx context.Context, d *Descriptor) error {
	return r.register(ctx, d, true)
}

// Restore registers descriptors read back from durable storage without
// writing them again. Invariants are still enforced.
func (r *Registry) Restore(ctx context.Context, ds []*Descriptor) error {
	sorted := slices.Clone(ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, d := range sorted {
		if err := r.register(ctx, d, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) register(ctx context.Context, d *Descriptor, persist bool) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d = d.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.ID]; exists {
		return errors.Validation("generator %s is already registered", d.ID)
	}
	if err := r.checkConflictsLocked(d); err != nil {
		return err
	}

	r.insertLocked(d)
	if chain := r.graph.CycleFrom(d.ID); chain != nil {
		r.removeLocked(d.ID)
		return &errors.CircularDependencyError{Chain: chain}
	}

	if persist && r.persister != nil {
		if err := r.persister.Save(ctx, d); err != nil {
			r.removeLocked(d.ID)
			return errors.Wrap(errors.ErrCodeInternal, err, "persist generator %s", d.ID)
		}
	}

	r.mutatedLocked()
	r.logger.Debug("registered generator", "id", d.ID, "version", d.Version)
	r.events.Publish(events.Registered, Event{ID: d.ID, Version: d.Version})
	observability.Registry().OnRegistered(ctx, d.ID, d.Version)
	return nil
}

func (r *Registry) checkConflictsLocked(d *Descriptor) error {
	for _, c := range d.Conflicts {
		if _, ok := r.descriptors[c]; ok {
			return &errors.ConflictError{ID: d.ID, With: c}
		}
	}
	for _, id := range r.sortedIDsLocked() {
		if r.descriptors[id].ConflictsWith(d.ID) {
			return &errors.ConflictError{ID: d.ID, With: id}
		}
	}
	return nil
}

// insertLocked adds d to the store and wires edges in both directions:
// from d to its registered dependencies, and from registered descriptors
// that were already waiting on d.
func (r *Registry) insertLocked(d *Descriptor) {
	r.descriptors[d.ID] = d
	_ = r.graph.AddNode(dag.Node{ID: d.ID, Meta: dag.Metadata{"version": d.Version}})

	for _, dep := range d.Dependencies {
		if _, ok := r.descriptors[dep.ID]; ok {
			_ = r.graph.AddEdge(dag.Edge{From: d.ID, To: dep.ID, Meta: edgeMeta(dep)})
		}
	}
	for _, id := range r.sortedIDsLocked() {
		other := r.descriptors[id]
		for _, dep := range other.Dependencies {
			if dep.ID == d.ID {
				_ = r.graph.AddEdge(dag.Edge{From: id, To: d.ID, Meta: edgeMeta(dep)})
			}
		}
	}
}

func edgeMeta(dep Dependency) dag.Metadata {
	meta := dag.Metadata{"required": dep.Required}
	if dep.Range != "" {
		meta["range"] = dep.Range
	}
	return meta
}

func (r *Registry) removeLocked(id string) {
	delete(r.descriptors, id)
	r.graph.RemoveNode(id)
}

func (r *Registry) mutatedLocked() {
	r.memo.Flush()
	r.generation.Add(1)
}

// Unregister removes the descriptor with the given id. It fails with
// NOT_FOUND for an unknown id and DEPENDENTS_EXIST while other registered
// descriptors depend on it.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[id]
	if !ok {
		return &errors.NotFoundError{ID: id}
	}
	if dependents := r.dependentsLocked(id); len(dependents) > 0 {
		return &errors.DependentsExistError{ID: id, Dependents: dependents}
	}

	if r.persister != nil {
		if err := r.persister.Delete(ctx, id); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "delete generator %s", id)
		}
	}

	r.removeLocked(id)
	r.mutatedLocked()
	r.logger.Debug("unregistered generator", "id", id)
	r.events.Publish(events.Unregistered, Event{ID: id, Version: d.Version})
	observability.Registry().OnUnregistered(ctx, id)
	return nil
}

// Dependents returns the sorted ids of registered descriptors whose
// dependency list names id.
func (r *Registry) Dependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependentsLocked(id)
}

func (r *Registry) dependentsLocked(id string) []string {
	var out []string
	for _, other := range r.sortedIDsLocked() {
		if r.descriptors[other].DependsOn(id) {
			out = append(out, other)
		}
	}
	return out
}

// Get returns a copy of the registered descriptor, or nil.
func (r *Registry) Get(id string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[id].Clone()
}

// List returns copies of all registered descriptors sorted by id.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, id := range r.sortedIDsLocked() {
		out = append(out, r.descriptors[id].Clone())
	}
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// Graph returns a snapshot of the dependency graph.
func (r *Registry) Graph() *dag.DAG {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Clone()
}

// Generation increases on every successful mutation. It is local to this
// Registry value; see Fingerprint for a key that holds across processes.
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

// Fingerprint is a content hash of the registered descriptors, in id
// order. Registries holding the same descriptors share a fingerprint
// whatever their mutation history, so it is safe in persistent cache keys.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := sha256.New()
	for _, id := range r.sortedIDsLocked() {
		io.WriteString(h, r.descriptors[id].Fingerprint())
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
