package compose

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matzehuels/stackforge/pkg/dag"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/registry"
)

// Plan is a validated, dependency-complete composition ready to run.
type Plan struct {
	Spec          string           `json:"spec"`
	Execution     Strategy         `json:"execution"`
	ErrorHandling ErrorPolicy      `json:"error_handling"`
	Rollback      RollbackStrategy `json:"rollback"`

	// Refs holds the requested refs with synthesized dependency refs
	// spliced in ahead of their requesters.
	Refs []Ref `json:"refs"`

	// Descriptors maps every ref id to the descriptor it resolved to.
	Descriptors map[string]*registry.Descriptor `json:"descriptors"`

	// Cached reports whether resolution was served from the plan cache.
	Cached bool `json:"cached"`

	spec *Spec
}

// Steps groups the plan's refs the way the strategy schedules them: one
// ref per step except for parallel groups.
func (p *Plan) Steps() [][]Ref {
	switch p.Execution {
	case Parallel:
		return partition(p.Refs)
	case Conditional:
		return singletons(p.Refs)
	}
	return singletons(sortByOrder(p.Refs))
}

func singletons(refs []Ref) [][]Ref {
	out := make([][]Ref, len(refs))
	for i, r := range refs {
		out[i] = []Ref{r}
	}
	return out
}

// Plan validates spec against the registry and resolves it without
// running any unit.
func (c *Composer) Plan(ctx context.Context, spec *Spec) (*Plan, error) {
	return c.plan(ctx, spec)
}

type cachedRef struct {
	ID          string `json:"id"`
	Order       int    `json:"order"`
	Synthesized bool   `json:"synthesized"`
}

type cachedPlan struct {
	Refs        []cachedRef                     `json:"refs"`
	Descriptors map[string]*registry.Descriptor `json:"descriptors"`
}

func (c *Composer) plan(ctx context.Context, spec *Spec) (*Plan, error) {
	if spec == nil {
		return nil, errors.Validation("composition spec is nil")
	}
	work := spec.Clone()
	work.SetDefaults()
	if err := work.Validate(); err != nil {
		return nil, err
	}

	p := &Plan{
		Spec:          work.Name,
		Execution:     work.Execution,
		ErrorHandling: work.ErrorHandling,
		Rollback:      work.Rollback,
		spec:          work,
	}

	key := ""
	if h := work.Hash(); h != "" {
		key = c.keyer.PlanKey(h, c.resolver.Fingerprint())
		if c.loadCachedPlan(ctx, key, p) {
			return p, nil
		}
	}

	descriptors, err := c.validateRefs(ctx, work)
	if err != nil {
		return nil, err
	}
	refs, err := c.expand(ctx, work.Refs, descriptors)
	if err != nil {
		return nil, err
	}
	p.Refs = refs
	p.Descriptors = descriptors

	if key != "" {
		c.storePlan(ctx, key, p)
	}
	return p, nil
}

// validateRefs resolves every requested ref and checks the requested set
// for dependency cycles among itself.
func (c *Composer) validateRefs(ctx context.Context, spec *Spec) (map[string]*registry.Descriptor, error) {
	descriptors := make(map[string]*registry.Descriptor, len(spec.Refs))
	var missing *errors.NotFoundError
	for _, ref := range spec.Refs {
		d, err := c.resolver.Resolve(ctx, ref.ID, ref.Version)
		if err != nil {
			return nil, err
		}
		if d == nil {
			if missing == nil {
				missing = &errors.NotFoundError{ID: ref.ID, Version: ref.Version}
			}
			continue
		}
		descriptors[ref.ID] = d
	}

	g := dag.New(nil)
	for _, ref := range spec.Refs {
		if _, ok := descriptors[ref.ID]; ok {
			_ = g.AddNode(dag.Node{ID: ref.ID})
		}
	}
	for _, ref := range spec.Refs {
		d, ok := descriptors[ref.ID]
		if !ok {
			continue
		}
		for _, dep := range d.Dependencies {
			if _, requested := descriptors[dep.ID]; requested {
				_ = g.AddEdge(dag.Edge{From: ref.ID, To: dep.ID})
			}
		}
	}
	if chain := g.FindCycle(); chain != nil {
		return nil, &errors.CircularDependencyError{Chain: chain}
	}
	if missing != nil {
		return nil, missing
	}
	return descriptors, nil
}

// expand splices a synthesized ref ahead of each requester for every
// dependency the spec did not request, deduplicated by id.
func (c *Composer) expand(ctx context.Context, refs []Ref, descriptors map[string]*registry.Descriptor) ([]Ref, error) {
	present := make(map[string]bool, len(refs))
	for _, r := range refs {
		present[r.ID] = true
	}

	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		order, err := c.resolver.ResolveDependencies(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		for _, dep := range order {
			if dep.ID == ref.ID || present[dep.ID] {
				continue
			}
			present[dep.ID] = true
			descriptors[dep.ID] = dep
			out = append(out, Ref{ID: dep.ID, Order: ref.Order - 1, Synthesized: true})
			c.logger.Debug("added implicit dependency", "generator", dep.ID, "required_by", ref.ID)
		}
		out = append(out, ref)
	}
	return out, nil
}

func (c *Composer) loadCachedPlan(ctx context.Context, key string, p *Plan) bool {
	data, hit, err := c.cache.Get(ctx, key)
	if err != nil || !hit {
		return false
	}
	var cp cachedPlan
	if err := json.Unmarshal(data, &cp); err != nil {
		return false
	}

	requested := make(map[string]Ref, len(p.spec.Refs))
	for _, r := range p.spec.Refs {
		requested[r.ID] = r
	}
	refs := make([]Ref, 0, len(cp.Refs))
	for _, cr := range cp.Refs {
		if cr.Synthesized {
			refs = append(refs, Ref{ID: cr.ID, Order: cr.Order, Synthesized: true})
			continue
		}
		r, ok := requested[cr.ID]
		if !ok {
			return false
		}
		refs = append(refs, r)
	}
	if !c.planCurrent(ctx, cp.Descriptors) {
		c.logger.Debug("discarding stale cached plan", "spec", p.Spec)
		_ = c.cache.Delete(ctx, key)
		return false
	}
	p.Refs = refs
	p.Descriptors = cp.Descriptors
	p.Cached = true
	return true
}

// planCurrent reports whether every cached descriptor is still what the
// resolver serves, and no dependency left out of the plan has become
// resolvable since. Lazily loaded registries start out empty, so the key
// alone cannot tell a fresh process from an unchanged one.
func (c *Composer) planCurrent(ctx context.Context, descriptors map[string]*registry.Descriptor) bool {
	for id, cached := range descriptors {
		cur, err := c.resolver.Resolve(ctx, id, "")
		if err != nil || cur == nil || cur.Fingerprint() != cached.Fingerprint() {
			return false
		}
	}
	for _, cached := range descriptors {
		for _, dep := range cached.Dependencies {
			if _, planned := descriptors[dep.ID]; planned {
				continue
			}
			if d, err := c.resolver.Resolve(ctx, dep.ID, dep.Range); err != nil || d != nil {
				return false
			}
		}
	}
	return true
}

func (c *Composer) storePlan(ctx context.Context, key string, p *Plan) {
	cp := cachedPlan{Descriptors: p.Descriptors}
	for _, r := range p.Refs {
		cp.Refs = append(cp.Refs, cachedRef{ID: r.ID, Order: r.Order, Synthesized: r.Synthesized})
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.planTTL); err != nil {
		c.logger.Debug("plan cache write failed", "error", fmt.Errorf("set %s: %w", key, err))
	}
}
