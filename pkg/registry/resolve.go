package registry

import (
	"context"
	"slices"
	"time"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/observability"
)

// Resolve returns the descriptor for id whose version satisfies versionRange
// (empty means any version).
//
// A registered descriptor is returned when it satisfies the range. Ids are
// unique, so a registered descriptor outside the range resolves to nil. Ids
// that are not registered are offered to the Loader; a loaded descriptor
// inside the range is registered, so it joins the dependency graph, and
// returned. Unresolved ids yield nil, nil.
func (r *Registry) Resolve(ctx context.Context, id, versionRange string) (*Descriptor, error) {
	if _, err := ParseRange(versionRange); err != nil {
		return nil, err
	}

	if d := r.Get(id); d != nil {
		ok, err := d.Satisfies(versionRange)
		if err != nil || !ok {
			return nil, err
		}
		return d, nil
	}

	if r.loader == nil {
		return nil, nil
	}
	loaded, err := r.loader.Load(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load generator %s", id)
	}
	if loaded == nil || loaded.ID != id {
		return nil, nil
	}
	if ok, err := loaded.Satisfies(versionRange); err != nil || !ok {
		return nil, err
	}

	if err := r.Register(ctx, loaded); err != nil {
		// Lost a race with a concurrent registration of the same id.
		if existing := r.Get(id); existing != nil {
			if ok, _ := existing.Satisfies(versionRange); ok {
				return existing, nil
			}
			return nil, nil
		}
		return nil, err
	}
	r.logger.Info("loaded generator", "id", loaded.ID, "version", loaded.Version)
	return loaded.Clone(), nil
}

type mark uint8

const (
	unvisited mark = iota
	visiting
	done
)

// ResolveDependencies returns id's transitive dependencies followed by id
// itself. Every dependency precedes its dependents and each descriptor
// appears once.
//
// It fails with NOT_FOUND when id does not resolve, MISSING_DEPENDENCY when
// a required dependency does not resolve within its range, and
// CIRCULAR_DEPENDENCY (carrying the chain) when the walk returns to a
// descriptor still being visited. Optional dependencies that do not resolve
// are skipped with a dependency:skipped signal.
//
// Results are memoized until the next registry mutation.
func (r *Registry) ResolveDependencies(ctx context.Context, id string) ([]*Descriptor, error) {
	if cached, ok := r.memo.Get(id); ok {
		return cloneAll(cached.([]*Descriptor)), nil
	}

	start := time.Now()
	generation := r.Generation()
	order, err := r.resolveDependencies(ctx, id)
	observability.Registry().OnResolve(ctx, id, len(order), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	// Only memoize when nothing changed underneath the walk.
	if r.Generation() == generation {
		r.memo.SetDefault(id, cloneAll(order))
	}
	return order, nil
}

func (r *Registry) resolveDependencies(ctx context.Context, id string) ([]*Descriptor, error) {
	root, err := r.Resolve(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, &errors.NotFoundError{ID: id}
	}

	state := make(map[string]mark)
	var order []*Descriptor

	var visit func(d *Descriptor, path []string) error
	visit = func(d *Descriptor, path []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		state[d.ID] = visiting
		path = append(path, d.ID)

		for _, dep := range d.Dependencies {
			if state[dep.ID] == visiting {
				return &errors.CircularDependencyError{Chain: append(slices.Clone(path), dep.ID)}
			}

			resolved, err := r.Resolve(ctx, dep.ID, dep.Range)
			if err != nil {
				return err
			}
			if resolved == nil {
				if dep.Required {
					return &errors.MissingDependencyError{ID: d.ID, Dependency: dep.ID, Range: dep.Range}
				}
				r.logger.Warn("skipping optional dependency", "generator", d.ID, "dependency", dep.ID, "range", dep.Range)
				r.events.Publish(events.DependencySkipped, Event{ID: d.ID, Version: d.Version, Dependency: dep.ID, Range: dep.Range})
				continue
			}

			if state[dep.ID] == unvisited {
				if err := visit(resolved, path); err != nil {
					return err
				}
			}
		}

		state[d.ID] = done
		order = append(order, d)
		return nil
	}

	if err := visit(root, nil); err != nil {
		return nil, err
	}
	return order, nil
}

func cloneAll(ds []*Descriptor) []*Descriptor {
	out := make([]*Descriptor, len(ds))
	for i, d := range ds {
		out[i] = d.Clone()
	}
	return out
}

// IDs extracts descriptor ids in order.
func IDs(ds []*Descriptor) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}
