// Package api exposes the generator registry and the composition engine
// over HTTP.
//
// Generator ids may carry a namespace ("go/model"); clients escape the
// slash in path parameters (/generators/go%2Fmodel).
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackforge/pkg/buildinfo"
	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/graph"
	"github.com/matzehuels/stackforge/pkg/registry"
	"github.com/matzehuels/stackforge/pkg/render/nodelink"
	"github.com/matzehuels/stackforge/pkg/specfile"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the HTTP API.
type Handler struct {
	reg      *registry.Registry
	composer *compose.Composer
	logger   *log.Logger
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	Registry *registry.Registry // required
	Composer *compose.Composer  // required for /compositions
	Logger   *log.Logger
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Handler{reg: cfg.Registry, composer: cfg.Composer, logger: logger}
}

// Routes returns the router with every endpoint registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.Health)
	r.Get("/graph", h.Graph)

	r.Route("/generators", func(r chi.Router) {
		r.Get("/", h.ListGenerators)
		r.Post("/", h.RegisterGenerator)
		r.Get("/{id}", h.GetGenerator)
		r.Delete("/{id}", h.UnregisterGenerator)
		r.Get("/{id}/dependencies", h.Dependencies)
		r.Get("/{id}/dependents", h.Dependents)
	})

	r.Route("/compositions", func(r chi.Router) {
		r.Post("/", h.Compose)
		r.Post("/plan", h.Plan)
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// === Request/Response Types ===

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Chain   []string `json:"chain,omitempty"`
	Details []string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string         `json:"status"`
	Generators int            `json:"generators"`
	Build      buildinfo.Info `json:"build"`
}

// ListGeneratorsResponse is the body of GET /generators.
type ListGeneratorsResponse struct {
	Generators []*registry.Descriptor `json:"generators"`
	Total      int                    `json:"total"`
}

// DependenciesResponse lists a generator's transitive dependencies in
// execution order, ending with the generator itself.
type DependenciesResponse struct {
	ID    string                 `json:"id"`
	Order []*registry.Descriptor `json:"order"`
}

// DependentsResponse lists the generators that depend on ID.
type DependentsResponse struct {
	ID         string   `json:"id"`
	Dependents []string `json:"dependents"`
}

// CompositionResponse is the body of POST /compositions.
type CompositionResponse struct {
	*compose.Outcome
	Error          string   `json:"error,omitempty"`
	RollbackErrors []string `json:"rollback_errors,omitempty"`
}

// === Handlers ===

// Health reports liveness, the registry size and the running build.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Generators: h.reg.Len(), Build: buildinfo.Get()})
}

// ListGenerators returns every registered descriptor sorted by id.
// GET /generators
func (h *Handler) ListGenerators(w http.ResponseWriter, r *http.Request) {
	ds := h.reg.List()
	if ds == nil {
		ds = []*registry.Descriptor{}
	}
	h.writeJSON(w, http.StatusOK, ListGeneratorsResponse{Generators: ds, Total: len(ds)})
}

// GetGenerator returns one descriptor.
// GET /generators/{id}
func (h *Handler) GetGenerator(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	d := h.reg.Get(id)
	if d == nil {
		h.writeErr(w, &errors.NotFoundError{ID: id})
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// RegisterGenerator registers the descriptor in the request body.
// POST /generators
func (h *Handler) RegisterGenerator(w http.ResponseWriter, r *http.Request) {
	var d registry.Descriptor
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		h.writeErr(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid JSON body"))
		return
	}
	if err := h.reg.Register(r.Context(), &d); err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Location", "/generators/"+url.PathEscape(d.ID))
	h.writeJSON(w, http.StatusCreated, h.reg.Get(d.ID))
}

// UnregisterGenerator removes a descriptor.
// DELETE /generators/{id}
func (h *Handler) UnregisterGenerator(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := h.reg.Unregister(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dependencies resolves a generator's transitive dependencies.
// GET /generators/{id}/dependencies
func (h *Handler) Dependencies(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	order, err := h.reg.ResolveDependencies(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DependenciesResponse{ID: id, Order: order})
}

// Dependents lists the generators that depend on a generator.
// GET /generators/{id}/dependents
func (h *Handler) Dependents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if h.reg.Get(id) == nil {
		h.writeErr(w, &errors.NotFoundError{ID: id})
		return
	}
	deps := h.reg.Dependents(id)
	if deps == nil {
		deps = []string{}
	}
	h.writeJSON(w, http.StatusOK, DependentsResponse{ID: id, Dependents: deps})
}

// Graph exports the registry dependency graph as JSON (default) or DOT.
// GET /graph?format=json|dot
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g := h.reg.Graph()
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		h.writeJSON(w, http.StatusOK, graph.FromDAG(g))
	case "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, nodelink.ToDOT(g, nodelink.Options{Detailed: r.URL.Query().Has("detailed")}))
	default:
		h.writeErr(w, errors.New(errors.ErrCodeInvalidInput, "unsupported graph format %q", format))
	}
}

// Compose runs the composition spec in the request body (JSON).
// POST /compositions
//
// A run that started always answers with its outcome: 200 when it
// succeeded, 422 otherwise.
func (h *Handler) Compose(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.decodeSpec(w, r)
	if !ok {
		return
	}
	out, err := h.composer.Execute(r.Context(), spec)
	if out == nil {
		h.writeErr(w, err)
		return
	}

	resp := CompositionResponse{Outcome: out}
	if err != nil {
		resp.Error = err.Error()
	}
	for _, rerr := range out.RollbackErrors {
		resp.RollbackErrors = append(resp.RollbackErrors, rerr.Error())
	}
	status := http.StatusOK
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, resp)
}

// Plan resolves the composition spec in the request body without running
// any generator.
// POST /compositions/plan
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.decodeSpec(w, r)
	if !ok {
		return
	}
	plan, err := h.composer.Plan(r.Context(), spec)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) decodeSpec(w http.ResponseWriter, r *http.Request) (*compose.Spec, bool) {
	if h.composer == nil {
		h.writeErr(w, errors.New(errors.ErrCodeUnsupported, "composition is not enabled"))
		return nil, false
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeErr(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading body"))
		return nil, false
	}
	spec, err := specfile.Parse(data, specfile.JSON, "api")
	if err != nil {
		h.writeErr(w, err)
		return nil, false
	}
	return spec, true
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err == nil {
		err = errors.ValidateGeneratorID(id)
	}
	if err != nil {
		h.writeErr(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid generator id"))
		return "", false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	resp := ErrorResponse{Error: errors.UserMessage(err), Code: string(errors.GetCode(err))}
	if resp.Code == "" {
		resp.Code = string(errors.ErrCodeInternal)
	}
	var cycle *errors.CircularDependencyError
	if errors.As(err, &cycle) {
		resp.Chain = cycle.Chain
	}
	var dependents *errors.DependentsExistError
	if errors.As(err, &dependents) {
		resp.Details = dependents.Dependents
	}
	h.writeJSON(w, status, resp)
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath, errors.ErrCodeInvalidSpec:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict, errors.ErrCodeDependentsExist, errors.ErrCodeCircularDependency:
		return http.StatusConflict
	case errors.ErrCodeMissingDependency, errors.ErrCodeExecution, errors.ErrCodeRollback:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeCanceled:
		return 499
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}
