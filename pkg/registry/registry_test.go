package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/events"
)

func desc(id string, deps ...string) *Descriptor {
	d := &Descriptor{ID: id, Name: id, Version: "1.0.0"}
	for _, dep := range deps {
		d.Dependencies = append(d.Dependencies, Dependency{ID: dep, Required: true})
	}
	return d
}

func mustRegister(t *testing.T, r *Registry, ds ...*Descriptor) {
	t.Helper()
	for _, d := range ds {
		require.NoError(t, r.Register(context.Background(), d), "register %s", d.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		d    *Descriptor
	}{
		{"nil", nil},
		{"empty id", &Descriptor{Name: "x", Version: "1.0.0"}},
		{"missing name", &Descriptor{ID: "x", Version: "1.0.0"}},
		{"bad version", &Descriptor{ID: "x", Name: "x", Version: "one"}},
		{"v-prefixed version", &Descriptor{ID: "x", Name: "x", Version: "v1.0.0"}},
		{"bad range", &Descriptor{ID: "x", Name: "x", Version: "1.0.0", Dependencies: []Dependency{{ID: "y", Range: "~>> 1"}}}},
		{"self dependency", &Descriptor{ID: "x", Name: "x", Version: "1.0.0", Dependencies: []Dependency{{ID: "x"}}}},
		{"duplicate dependency", &Descriptor{ID: "x", Name: "x", Version: "1.0.0", Dependencies: []Dependency{{ID: "y"}, {ID: "y"}}}},
		{"self conflict", &Descriptor{ID: "x", Name: "x", Version: "1.0.0", Conflicts: []string{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{})
			err := r.Register(context.Background(), tt.d)
			if !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("Register() error = %v, want VALIDATION", err)
			}
			if r.Len() != 0 {
				t.Errorf("Len() = %d, want 0", r.Len())
			}
		})
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	r := New(Options{})
	mustRegister(t, r, desc("model"))

	err := r.Register(context.Background(), desc("model"))
	require.True(t, errors.Is(err, errors.ErrCodeValidation), "got %v", err)
}

func TestRegisterConflictSymmetric(t *testing.T) {
	ctx := context.Background()

	a := desc("gorm")
	a.Conflicts = []string{"sqlc"}
	b := desc("sqlc")

	// A first, then B.
	r := New(Options{})
	mustRegister(t, r, a)
	err := r.Register(ctx, b)
	var conflict *errors.ConflictError
	require.True(t, stderrors.As(err, &conflict), "got %v", err)
	require.Equal(t, "sqlc", conflict.ID)
	require.Equal(t, "gorm", conflict.With)

	// B first, then A.
	r = New(Options{})
	mustRegister(t, r, b)
	err = r.Register(ctx, a)
	require.True(t, stderrors.As(err, &conflict), "got %v", err)
	require.Equal(t, "gorm", conflict.ID)
	require.Equal(t, "sqlc", conflict.With)
	require.Equal(t, 1, r.Len())
}

func TestRegisterCycleLeavesStoreUnchanged(t *testing.T) {
	r := New(Options{})
	// a -> b -> c, with c's dependency on a registered last.
	mustRegister(t, r, desc("a", "b"), desc("b", "c"))
	before := r.Generation()

	err := r.Register(context.Background(), desc("c", "a"))

	var cycle *errors.CircularDependencyError
	require.True(t, stderrors.As(err, &cycle), "got %v", err)
	require.Equal(t, []string{"c", "a", "b", "c"}, cycle.Chain)
	require.Nil(t, r.Get("c"))
	require.Equal(t, 2, r.Len())
	require.Equal(t, before, r.Generation())
	require.Equal(t, 1, r.Graph().EdgeCount(), "only a->b remains")
}

func TestFingerprint(t *testing.T) {
	ctx := context.Background()

	a := New(Options{})
	mustRegister(t, a, desc("model"), desc("api", "model"))
	b := New(Options{})
	mustRegister(t, b, desc("api", "model"), desc("model"))
	require.Equal(t, a.Fingerprint(), b.Fingerprint(), "registration order does not matter")

	// Remove and re-add at a new version: the mutation count stays level
	// with a fresh registry's, the content does not.
	require.NoError(t, b.Unregister(ctx, "api"))
	api2 := desc("api", "model")
	api2.Version = "2.0.0"
	mustRegister(t, b, api2)
	c := New(Options{})
	mustRegister(t, c, desc("model"), desc("api", "model"))
	require.NotEqual(t, c.Fingerprint(), b.Fingerprint())

	edited := desc("api", "model")
	edited.Run = "echo changed"
	require.NotEqual(t, desc("api", "model").Fingerprint(), edited.Fingerprint())
	require.Empty(t, (*Descriptor)(nil).Fingerprint())
	require.Equal(t, New(Options{}).Fingerprint(), New(Options{}).Fingerprint())
}

func TestRegisterWiresLateDependency(t *testing.T) {
	r := New(Options{})
	mustRegister(t, r, desc("api", "model"))
	require.Equal(t, 0, r.Graph().EdgeCount())

	mustRegister(t, r, desc("model"))
	g := r.Graph()
	require.Equal(t, []string{"model"}, g.Children("api"))
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	r := New(Options{})
	mustRegister(t, r, desc("model"), desc("api", "model"), desc("handler", "model"))

	err := r.Unregister(ctx, "model")
	var dependents *errors.DependentsExistError
	require.True(t, stderrors.As(err, &dependents), "got %v", err)
	require.Equal(t, []string{"api", "handler"}, dependents.Dependents)

	require.NoError(t, r.Unregister(ctx, "api"))
	require.NoError(t, r.Unregister(ctx, "handler"))
	require.NoError(t, r.Unregister(ctx, "model"))
	require.Equal(t, 0, r.Len())
	require.Equal(t, 0, r.Graph().NodeCount())

	err = r.Unregister(ctx, "model")
	require.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r := New(Options{})
	d := desc("model")
	d.Version = "1.4.2"
	mustRegister(t, r, d)

	tests := []struct {
		rng   string
		found bool
	}{
		{"", true},
		{"*", true},
		{"^1.0.0", true},
		{">=1.4, <2", true},
		{"~1.4.0", true},
		{"^2.0.0", false},
		{"<1.4.2", false},
	}
	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			got, err := r.Resolve(ctx, "model", tt.rng)
			require.NoError(t, err)
			require.Equal(t, tt.found, got != nil)
		})
	}

	got, err := r.Resolve(ctx, "missing", "")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = r.Resolve(ctx, "model", "not a range !!")
	require.True(t, errors.Is(err, errors.ErrCodeValidation), "got %v", err)
}

type mapLoader map[string]*Descriptor

func (m mapLoader) Load(_ context.Context, id string) (*Descriptor, error) {
	return m[id], nil
}

func TestResolveDelegatesToLoader(t *testing.T) {
	ctx := context.Background()
	loaded := desc("model")
	loaded.Version = "2.1.0"
	r := New(Options{Loader: mapLoader{"model": loaded}})

	got, err := r.Resolve(ctx, "model", "^1.0.0")
	require.NoError(t, err)
	require.Nil(t, got, "loaded version outside range")
	require.Nil(t, r.Get("model"))

	got, err = r.Resolve(ctx, "model", "^2.0.0")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, r.Get("model"), "loaded descriptor is registered")
}

func TestResolveDependenciesScenario(t *testing.T) {
	r := New(Options{})
	mustRegister(t, r, desc("a"), desc("b", "a"), desc("c", "b"))

	order, err := r.ResolveDependencies(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, IDs(order))
}

func TestResolveDependenciesDiamond(t *testing.T) {
	r := New(Options{})
	mustRegister(t, r,
		desc("util"),
		desc("model", "util"),
		desc("handler", "model", "util"),
		desc("api", "handler", "model"),
	)

	order, err := r.ResolveDependencies(context.Background(), "api")
	require.NoError(t, err)
	require.Equal(t, []string{"util", "model", "handler", "api"}, IDs(order))
}

func TestResolveDependenciesErrors(t *testing.T) {
	ctx := context.Background()
	r := New(Options{})

	_, err := r.ResolveDependencies(ctx, "missing")
	require.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)

	mustRegister(t, r, desc("api", "model"))
	_, err = r.ResolveDependencies(ctx, "api")
	var missing *errors.MissingDependencyError
	require.True(t, stderrors.As(err, &missing), "got %v", err)
	require.Equal(t, "api", missing.ID)
	require.Equal(t, "model", missing.Dependency)

	// A registered dependency outside the requested range is missing too.
	model := desc("model")
	model.Version = "3.0.0"
	mustRegister(t, r, model)
	ranged := desc("client")
	ranged.Dependencies = []Dependency{{ID: "model", Range: "^1.0.0", Required: true}}
	mustRegister(t, r, ranged)
	_, err = r.ResolveDependencies(ctx, "client")
	require.True(t, stderrors.As(err, &missing), "got %v", err)
	require.Equal(t, "^1.0.0", missing.Range)

	for _, e := range r.Graph().Edges() {
		if e.From == "client" {
			require.Equal(t, "^1.0.0", e.Meta["range"])
			require.Equal(t, true, e.Meta["required"])
		}
	}
}

func TestResolveDependenciesCycleChain(t *testing.T) {
	r := New(Options{})
	mustRegister(t, r, desc("a", "b"), desc("b"))

	// Force a cycle into the store behind the registry's back to exercise
	// the walk's own detection.
	r.mu.Lock()
	r.descriptors["b"].Dependencies = []Dependency{{ID: "a", Required: true}}
	r.mu.Unlock()

	_, err := r.ResolveDependencies(context.Background(), "a")
	var cycle *errors.CircularDependencyError
	require.True(t, stderrors.As(err, &cycle), "got %v", err)
	require.Equal(t, []string{"a", "b", "a"}, cycle.Chain)
}

func TestResolveDependenciesSkipsOptional(t *testing.T) {
	broker := events.NewBroker[Event]()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := broker.Subscribe(ctx)

	r := New(Options{Events: broker})
	api := desc("api", "model")
	api.Dependencies = append(api.Dependencies, Dependency{ID: "metrics", Required: false})
	mustRegister(t, r, desc("model"), api)

	order, err := r.ResolveDependencies(ctx, "api")
	require.NoError(t, err)
	require.Equal(t, []string{"model", "api"}, IDs(order))

	// Drain the registration events, then expect the skip.
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != events.DependencySkipped {
				continue
			}
			require.Equal(t, "api", ev.Payload.ID)
			require.Equal(t, "metrics", ev.Payload.Dependency)
			return
		case <-deadline:
			t.Fatal("no dependency:skipped event")
		}
	}
}

func TestResolveDependenciesMemoInvalidated(t *testing.T) {
	ctx := context.Background()
	r := New(Options{})
	mustRegister(t, r, desc("api"))

	order, err := r.ResolveDependencies(ctx, "api")
	require.NoError(t, err)
	require.Equal(t, []string{"api"}, IDs(order))

	// Mutating a returned descriptor must not leak into the memo.
	order[0].Name = "mutated"
	again, _ := r.ResolveDependencies(ctx, "api")
	require.Equal(t, "api", again[0].Name)

	require.NoError(t, r.Unregister(ctx, "api"))
	_, err = r.ResolveDependencies(ctx, "api")
	require.True(t, errors.Is(err, errors.ErrCodeNotFound), "memo must be invalidated, got %v", err)
}

type recordingPersister struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
	failOn  string
}

func (p *recordingPersister) Save(_ context.Context, d *Descriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d.ID == p.failOn {
		return fmt.Errorf("disk full")
	}
	p.saved = append(p.saved, d.ID)
	return nil
}

func (p *recordingPersister) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

func TestPersister(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{failOn: "broken"}
	r := New(Options{Persister: p})

	mustRegister(t, r, desc("model"))
	require.Error(t, r.Register(ctx, desc("broken")))
	require.Nil(t, r.Get("broken"), "failed persist rolls back")
	require.NoError(t, r.Unregister(ctx, "model"))

	require.Equal(t, []string{"model"}, p.saved)
	require.Equal(t, []string{"model"}, p.deleted)

	// Restore does not write back.
	require.NoError(t, r.Restore(ctx, []*Descriptor{desc("b", "a"), desc("a")}))
	require.Equal(t, []string{"model"}, p.saved)
	require.Equal(t, []string{"a"}, r.Graph().Children("b"))
}

func TestListAndDependents(t *testing.T) {
	r := New(Options{})
	mustRegister(t, r, desc("model"), desc("api", "model"), desc("cli"))

	require.Equal(t, []string{"api", "cli", "model"}, IDs(r.List()))
	require.Equal(t, []string{"api"}, r.Dependents("model"))
	require.Empty(t, r.Dependents("api"))
}

func TestConcurrentRegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	r := New(Options{})
	mustRegister(t, r, desc("base"))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register(ctx, desc(fmt.Sprintf("gen-%d", i), "base"))
		}()
		go func() {
			defer wg.Done()
			_, _ = r.ResolveDependencies(ctx, "base")
		}()
	}
	wg.Wait()

	require.Equal(t, 21, r.Len())
	require.Len(t, r.Dependents("base"), 20)
}

// For any acyclic registry, resolution lists each descriptor once and puts
// every dependency before its dependents.
func TestResolveDependenciesTopologicalProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		n := rapid.IntRange(1, 10).Draw(t, "n")
		r := New(Options{})

		ids := make([]string, n)
		for i := range n {
			ids[i] = fmt.Sprintf("g%d", i)
		}
		// Dependencies only point at lower indices, keeping the graph acyclic.
		for i := range n {
			d := desc(ids[i])
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("dep-%d-%d", i, j)) {
					d.Dependencies = append(d.Dependencies, Dependency{ID: ids[j], Required: true})
				}
			}
			if err := r.Register(ctx, d); err != nil {
				t.Fatalf("Register(%s) error = %v", d.ID, err)
			}
		}

		root := ids[rapid.IntRange(0, n-1).Draw(t, "root")]
		order, err := r.ResolveDependencies(ctx, root)
		if err != nil {
			t.Fatalf("ResolveDependencies(%s) error = %v", root, err)
		}

		pos := make(map[string]int, len(order))
		for i, d := range order {
			if _, dup := pos[d.ID]; dup {
				t.Fatalf("duplicate %s in %v", d.ID, IDs(order))
			}
			pos[d.ID] = i
		}
		if order[len(order)-1].ID != root {
			t.Fatalf("last = %s, want root %s", order[len(order)-1].ID, root)
		}
		for _, d := range order {
			for _, dep := range d.Dependencies {
				p, ok := pos[dep.ID]
				if !ok {
					t.Fatalf("dependency %s of %s missing from %v", dep.ID, d.ID, IDs(order))
				}
				if p >= pos[d.ID] {
					t.Fatalf("dependency %s after dependent %s in %v", dep.ID, d.ID, IDs(order))
				}
			}
		}
	})
}
