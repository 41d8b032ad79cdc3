package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/graph"
	"github.com/matzehuels/stackforge/pkg/registry"
	"github.com/matzehuels/stackforge/pkg/unit"
)

type fixture struct {
	reg   *registry.Registry
	units *unit.Runtimes
	h     http.Handler
}

func newFixture(t *testing.T, ds ...*registry.Descriptor) *fixture {
	t.Helper()
	reg := registry.New(registry.Options{})
	for _, d := range ds {
		require.NoError(t, reg.Register(context.Background(), d))
	}
	dir := t.TempDir()
	units := unit.NewRuntimes(unit.Config{WorkDir: dir})
	comp, err := compose.New(compose.Options{Resolver: reg, Factory: units, WorkDir: dir})
	require.NoError(t, err)
	return &fixture{
		reg:   reg,
		units: units,
		h:     NewHandler(HandlerConfig{Registry: reg, Composer: comp}).Routes(),
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

func desc(id string, deps ...string) *registry.Descriptor {
	d := &registry.Descriptor{ID: id, Name: id, Version: "1.0.0"}
	for _, dep := range deps {
		d.Dependencies = append(d.Dependencies, registry.Dependency{ID: dep, Required: true})
	}
	return d
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, desc("model"))
	w := f.do(http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, 1, resp.Generators)
	require.NotEmpty(t, resp.Build.Version)
}

func TestListGenerators(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/generators", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"generators":[],"total":0}`, w.Body.String())

	f = newFixture(t, desc("model"), desc("api", "model"))
	resp := decode[ListGeneratorsResponse](t, f.do(http.MethodGet, "/generators", ""))
	require.Equal(t, 2, resp.Total)
	require.Equal(t, []string{"api", "model"}, registry.IDs(resp.Generators))
}

func TestGetGenerator(t *testing.T) {
	f := newFixture(t, desc("go/model"))

	w := f.do(http.MethodGet, "/generators/go%2Fmodel", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "go/model", decode[registry.Descriptor](t, w).ID)

	w = f.do(http.MethodGet, "/generators/absent", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, string(errors.ErrCodeNotFound), decode[ErrorResponse](t, w).Code)

	w = f.do(http.MethodGet, "/generators/Bad%20Id", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterGenerator(t *testing.T) {
	f := newFixture(t, desc("model"))

	w := f.do(http.MethodPost, "/generators",
		`{"id":"api","name":"API","version":"1.2.0","dependencies":[{"id":"model","range":"^1.0.0","required":true}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "/generators/api", w.Header().Get("Location"))
	require.NotNil(t, f.reg.Get("api"))
	require.Equal(t, []string{"api"}, f.reg.Dependents("model"))
}

func TestRegisterGeneratorErrors(t *testing.T) {
	conflicting := desc("sqlc")
	conflicting.Conflicts = []string{"gorm"}

	tests := []struct {
		name   string
		body   string
		status int
		code   errors.Code
	}{
		{"invalid json", `not json`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"unknown field", `{"id":"x","name":"x","version":"1.0.0","colour":"red"}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"bad version", `{"id":"x","name":"x","version":"one"}`, http.StatusBadRequest, errors.ErrCodeValidation},
		{"duplicate", `{"id":"model","name":"model","version":"2.0.0"}`, http.StatusBadRequest, errors.ErrCodeValidation},
		{"conflict", `{"id":"gorm","name":"gorm","version":"1.0.0"}`, http.StatusConflict, errors.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, desc("model"), conflicting)
			w := f.do(http.MethodPost, "/generators", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			require.Equal(t, string(tt.code), decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestRegisterGeneratorCycle(t *testing.T) {
	f := newFixture(t, desc("a", "b"))

	w := f.do(http.MethodPost, "/generators", `{"id":"b","name":"b","version":"1.0.0","dependencies":[{"id":"a","required":true}]}`)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.Equal(t, string(errors.ErrCodeCircularDependency), resp.Code)
	require.NotEmpty(t, resp.Chain)
	require.Nil(t, f.reg.Get("b"))
}

func TestUnregisterGenerator(t *testing.T) {
	f := newFixture(t, desc("model"), desc("api", "model"))

	w := f.do(http.MethodDelete, "/generators/model", "")
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.Equal(t, string(errors.ErrCodeDependentsExist), resp.Code)
	require.Equal(t, []string{"api"}, resp.Details)

	require.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/generators/api", "").Code)
	require.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/generators/model", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/generators/model", "").Code)
}

func TestDependencies(t *testing.T) {
	f := newFixture(t, desc("model"), desc("repo", "model"), desc("api", "repo", "model"))

	w := f.do(http.MethodGet, "/generators/api/dependencies", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[DependenciesResponse](t, w)
	require.Equal(t, []string{"model", "repo", "api"}, registry.IDs(resp.Order))

	deps := decode[DependentsResponse](t, f.do(http.MethodGet, "/generators/model/dependents", ""))
	require.Equal(t, []string{"api", "repo"}, deps.Dependents)

	w = f.do(http.MethodGet, "/generators/absent/dependencies", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDependenciesMissing(t *testing.T) {
	f := newFixture(t, desc("api", "model"))

	w := f.do(http.MethodGet, "/generators/api/dependencies", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, string(errors.ErrCodeMissingDependency), decode[ErrorResponse](t, w).Code)
}

func TestGraph(t *testing.T) {
	f := newFixture(t, desc("model"), desc("api", "model"))

	w := f.do(http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[graph.Graph](t, w)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)

	w = f.do(http.MethodGet, "/graph?format=dot", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.HasPrefix(w.Body.String(), "digraph"), w.Body.String())

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/graph?format=png", "").Code)
}

func TestCompose(t *testing.T) {
	f := newFixture(t, desc("model"), desc("api", "model"))
	f.units.Bind("model", unit.Func(func(context.Context, map[string]any) (*unit.Result, error) {
		return &unit.Result{Success: true}, nil
	}))
	f.units.Bind("api", unit.Func(func(context.Context, map[string]any) (*unit.Result, error) {
		return &unit.Result{Success: true}, nil
	}))

	w := f.do(http.MethodPost, "/compositions", `{"name":"svc","generators":[{"id":"api"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CompositionResponse](t, w)
	require.True(t, resp.Success)
	require.Equal(t, compose.StateSucceeded, resp.State)
	require.Equal(t, []string{"model", "api"}, resp.ExecutionOrder)
}

func TestComposeFailure(t *testing.T) {
	f := newFixture(t, desc("model"))
	f.units.Bind("model", unit.Func(func(context.Context, map[string]any) (*unit.Result, error) {
		return &unit.Result{Success: false, Message: "boom"}, nil
	}))

	w := f.do(http.MethodPost, "/compositions", `{"name":"svc","generators":[{"id":"model"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[CompositionResponse](t, w)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "model")
}

func TestComposeRejectsBadSpecs(t *testing.T) {
	f := newFixture(t, desc("model"))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"unknown strategy", `{"generators":[{"id":"model"}],"execution":"random"}`, http.StatusBadRequest},
		{"unknown generator", `{"generators":[{"id":"absent"}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/compositions", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestPlan(t *testing.T) {
	f := newFixture(t, desc("model"), desc("api", "model"))

	w := f.do(http.MethodPost, "/compositions/plan", `{"name":"svc","generators":[{"id":"api"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan := decode[compose.Plan](t, w)
	ids := make([]string, len(plan.Refs))
	for i, r := range plan.Refs {
		ids[i] = r.ID
	}
	require.Equal(t, []string{"model", "api"}, ids)
}

func TestComposeDisabled(t *testing.T) {
	h := NewHandler(HandlerConfig{Registry: registry.New(registry.Options{})}).Routes()
	req := httptest.NewRequest(http.MethodPost, "/compositions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Validation("x"), http.StatusBadRequest},
		{&errors.NotFoundError{ID: "x"}, http.StatusNotFound},
		{&errors.ConflictError{ID: "a", With: "b"}, http.StatusConflict},
		{&errors.DependentsExistError{ID: "a"}, http.StatusConflict},
		{&errors.MissingDependencyError{ID: "a", Dependency: "b"}, http.StatusUnprocessableEntity},
		{&errors.ExecutionError{ID: "a"}, http.StatusUnprocessableEntity},
		{errors.New(errors.ErrCodeCanceled, "x"), 499},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestServer(t *testing.T) {
	f := newFixture(t, desc("model"))
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Handler: NewHandler(HandlerConfig{Registry: f.reg})})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, <-done)
}
