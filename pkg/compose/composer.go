package compose

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/observability"
	"github.com/matzehuels/stackforge/pkg/registry"
	"github.com/matzehuels/stackforge/pkg/unit"
)

// Resolver is the registry surface the composer needs.
type Resolver interface {
	Resolve(ctx context.Context, id, versionRange string) (*registry.Descriptor, error)
	ResolveDependencies(ctx context.Context, id string) ([]*registry.Descriptor, error)
	// Fingerprint hashes the resolvable content; plan cache keys carry it.
	Fingerprint() string
}

// CommandUndoer is implemented by unit factories whose runtimes can
// reverse reported commands. The composer consults it for command-undo
// handlers that are not in its own table.
type CommandUndoer interface {
	CanUndo(runtime string) bool
	Undo(ctx context.Context, runtime, command, inverse string) error
}

const defaultRuntime = unit.DefaultRuntime

// State is a composition's lifecycle state.
type State string

const (
	StateNotStarted State = "not-started"
	StateValidating State = "validating"
	StateResolving  State = "resolving"
	StateExecuting  State = "executing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateRolledBack State = "rolled-back"
)

// Outcome is the structured result of a composition run.
type Outcome struct {
	RunID          string           `json:"run_id"`
	Spec           string           `json:"spec"`
	State          State            `json:"state"`
	Success        bool             `json:"success"`
	Results        []UnitResult     `json:"results"`
	ExecutionOrder []string         `json:"execution_order"`
	Skipped        []string         `json:"skipped,omitempty"` // refs whose condition was not met
	Actions        []RollbackAction `json:"rollback_actions,omitempty"`
	Duration       time.Duration    `json:"duration"`
	Err            error            `json:"-"`
	RollbackErrors []error          `json:"-"`
}

// Event is the payload of composition signals. Only the fields relevant to
// the signal type are set.
type Event struct {
	RunID   string
	Spec    string
	State   State
	Ref     *Ref
	Result  *UnitResult
	Outcome *Outcome
	Action  *RollbackAction
	Batch   *BatchOutcome
	Err     string
}

// Options configures a Composer.
type Options struct {
	Resolver Resolver     // required
	Factory  unit.Factory // required
	Logger   *log.Logger
	Events   *events.Broker[Event]

	// WorkDir resolves relative file paths reported by units.
	WorkDir string

	// Cache holds resolved plans keyed by spec hash and registry fingerprint.
	Cache cache.Cache
	Keyer cache.Keyer
	// PlanTTL bounds how long a cached plan is kept. Defaults to one hour.
	PlanTTL time.Duration
}

// Composer runs compositions against a registry. A Composer is safe for
// concurrent use; each Execute call owns its own Context.
type Composer struct {
	resolver Resolver
	factory  unit.Factory
	logger   *log.Logger
	events   *events.Broker[Event]
	workDir  string

	cache   cache.Cache
	keyer   cache.Keyer
	planTTL time.Duration

	undoMu sync.RWMutex
	undo   map[string]UndoHandler
}

// New creates a composer.
func New(opts Options) (*Composer, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("compose: resolver is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("compose: unit factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	c := opts.Cache
	if c == nil {
		c = cache.NewNullCache()
	}
	keyer := opts.Keyer
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	ttl := opts.PlanTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Composer{
		resolver: opts.Resolver,
		factory:  opts.Factory,
		logger:   logger,
		events:   opts.Events,
		workDir:  opts.WorkDir,
		cache:    cache.Instrument(c, "plan"),
		keyer:    keyer,
		planTTL:  ttl,
		undo:     make(map[string]UndoHandler),
	}, nil
}

// Execute runs spec.
//
// Validation and resolution errors return a nil outcome. Once execution
// starts the outcome is always returned; the error is non-nil only when a
// unit failure escalated under the fail-fast or rollback policy, or the
// run was canceled. Failures under continue and skip leave Success false
// but return a nil error.
func (c *Composer) Execute(ctx context.Context, spec *Spec) (*Outcome, error) {
	if spec == nil {
		return nil, errors.Validation("composition spec is nil")
	}
	runID := uuid.NewString()
	start := time.Now()

	c.setState(runID, spec.Name, StateValidating)
	plan, err := c.plan(ctx, spec)
	if err != nil {
		c.setState(runID, spec.Name, StateFailed)
		return nil, err
	}
	work := plan.spec

	ctx = observability.Composition().OnCompositionStart(ctx, runID, work.Name, string(work.Execution), len(plan.Refs))
	c.logger.Info("composition started",
		"run", runID,
		"spec", work.Name,
		"strategy", work.Execution,
		"generators", len(plan.Refs))

	c.setState(runID, work.Name, StateExecuting)
	rc := newContext(runID, work.Variables)
	runErr := c.dispatch(ctx, work, plan, rc)

	if runErr != nil && (work.Rollback != RollbackNone || work.ErrorHandling == Rollback) {
		// No-op when the rollback policy already replayed the actions.
		c.rollback(ctx, rc)
	}

	out := c.outcome(work, rc, start)
	switch {
	case runErr != nil && rc.rolledBack:
		out.State = StateRolledBack
		out.Success = false
	case runErr != nil:
		out.State = StateFailed
		out.Success = false
	case out.Success:
		out.State = StateSucceeded
	default:
		out.State = StateFailed
	}
	out.Err = runErr

	c.setState(runID, work.Name, out.State)
	observability.Composition().OnCompositionComplete(ctx, runID, string(out.State), out.Duration, runErr)
	c.events.Publish(events.CompositionCompleted, Event{RunID: runID, Spec: work.Name, State: out.State, Outcome: out, Err: errString(runErr)})
	c.logger.Info("composition finished",
		"run", runID,
		"spec", work.Name,
		"state", out.State,
		"results", len(out.Results),
		"duration", out.Duration)

	return out, runErr
}

func (c *Composer) dispatch(ctx context.Context, spec *Spec, plan *Plan, rc *Context) error {
	switch spec.Execution {
	case Sequential:
		return c.runSequential(ctx, spec, plan, rc)
	case Parallel:
		return c.runParallel(ctx, spec, plan, rc)
	case Conditional:
		return c.runConditional(ctx, spec, plan, rc)
	case Pipeline:
		return c.runPipeline(ctx, spec, plan, rc)
	}
	return errors.Validation("unknown execution strategy %q", spec.Execution)
}

func (c *Composer) outcome(spec *Spec, rc *Context, start time.Time) *Outcome {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := &Outcome{
		RunID:          rc.RunID,
		Spec:           spec.Name,
		ExecutionOrder: append([]string(nil), rc.order...),
		Skipped:        append([]string(nil), rc.skipped...),
		Actions:        append([]RollbackAction(nil), rc.actions...),
		RollbackErrors: append([]error(nil), rc.rollbackErrs...),
		Duration:       time.Since(start),
		Success:        true,
	}
	for _, id := range rc.resultIDs {
		r := rc.results[id]
		out.Results = append(out.Results, *r)
		if !r.Success {
			out.Success = false
		}
	}
	return out
}

func (c *Composer) setState(runID, spec string, s State) {
	c.events.Publish(events.StateChanged, Event{RunID: runID, Spec: spec, State: s})
}
