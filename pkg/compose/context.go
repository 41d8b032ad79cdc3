package compose

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// UnitResult records one attempted ref.
type UnitResult struct {
	ID       string        `json:"id"`
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Files    []string      `json:"files,omitempty"`
	Commands []string      `json:"commands,omitempty"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"` // failed under the skip policy
	Duration time.Duration `json:"duration"`
}

// asValue is the view of a result that conditions and pipeline steps see.
func (r *UnitResult) asValue() map[string]any {
	files := make([]any, len(r.Files))
	for i, f := range r.Files {
		files[i] = f
	}
	commands := make([]any, len(r.Commands))
	for i, c := range r.Commands {
		commands[i] = c
	}
	return map[string]any{
		"id":       r.ID,
		"success":  r.Success,
		"message":  r.Message,
		"files":    files,
		"commands": commands,
		"error":    r.Error,
		"skipped":  r.Skipped,
	}
}

// Context is the state of one composition run. It is owned by that run;
// the mutex only serializes the goroutines of a parallel group.
type Context struct {
	RunID     string
	StartTime time.Time

	mu        sync.Mutex
	variables map[string]any
	results   map[string]*UnitResult
	resultIDs []string // ids in result order
	order     []string // ids in completion order
	actions   []RollbackAction
	skipped   []string

	rolledBack   bool
	rollbackErrs []error
}

func newContext(runID string, variables map[string]any) *Context {
	vars := maps.Clone(variables)
	if vars == nil {
		vars = make(map[string]any)
	}
	return &Context{
		RunID:     runID,
		StartTime: time.Now(),
		variables: vars,
		results:   make(map[string]*UnitResult),
	}
}

// Variable returns a variable's value.
func (c *Context) Variable(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variables[key]
	return v, ok
}

// Variables returns a copy of the variable bag.
func (c *Context) Variables() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.variables)
}

// SetVariable sets a variable.
func (c *Context) SetVariable(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// Result returns the recorded result for id.
func (c *Context) Result(id string) (UnitResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[id]
	if !ok {
		return UnitResult{}, false
	}
	return *r, true
}

// ExecutionOrder returns the ids in completion order.
func (c *Context) ExecutionOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// RollbackActions returns the recorded actions in creation order.
func (c *Context) RollbackActions() []RollbackAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.actions)
}

// record stores a finished unit's result and actions. Completion is
// logged separately for parallel groups, whose results are recorded in
// input order after the whole group finished.
func (c *Context) record(r *UnitResult, actions []RollbackAction, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.ID] = r
	c.resultIDs = append(c.resultIDs, r.ID)
	if completed {
		c.order = append(c.order, r.ID)
	}
	c.actions = append(c.actions, actions...)
}

func (c *Context) completed(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, id)
}

func (c *Context) skip(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = append(c.skipped, id)
}

// scope snapshots variables and results for condition evaluation.
func (c *Context) scope() (map[string]any, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make(map[string]any, len(c.results))
	for id, r := range c.results {
		results[id] = r.asValue()
	}
	return maps.Clone(c.variables), results
}

// takeActions hands the recorded actions to a rollback exactly once.
func (c *Context) takeActions() ([]RollbackAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rolledBack {
		return nil, false
	}
	c.rolledBack = true
	return slices.Clone(c.actions), true
}
