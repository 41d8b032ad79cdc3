package compose

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/expr"
	"github.com/matzehuels/stackforge/pkg/observability"
	"github.com/matzehuels/stackforge/pkg/unit"
)

// PipelineDataKey is the option under which pipeline steps receive a
// snapshot of the rolling variables.
const PipelineDataKey = "_pipelineData"

// EnabledVariable names the variable that forces an optional ref without
// a condition to run.
func EnabledVariable(id string) string { return id + "_enabled" }

func (c *Composer) runSequential(ctx context.Context, spec *Spec, plan *Plan, rc *Context) error {
	for _, ref := range sortByOrder(plan.Refs) {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		if !c.optionalAllowed(ref, rc) {
			c.skipRef(ref, rc, "optional generator not enabled")
			continue
		}
		if err := c.step(ctx, spec, plan, rc, ref, ref.Options); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) runConditional(ctx context.Context, spec *Spec, plan *Plan, rc *Context) error {
	for _, ref := range plan.Refs {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		if ref.HasCondition() && !c.evaluate(ref, rc) {
			c.skipRef(ref, rc, "condition not met")
			continue
		}
		if err := c.step(ctx, spec, plan, rc, ref, ref.Options); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) runPipeline(ctx context.Context, spec *Spec, plan *Plan, rc *Context) error {
	for _, ref := range sortByOrder(plan.Refs) {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		if !c.optionalAllowed(ref, rc) {
			c.skipRef(ref, rc, "optional generator not enabled")
			continue
		}

		vars := rc.Variables()
		options := maps.Clone(ref.Options)
		if options == nil {
			options = make(map[string]any, len(vars)+1)
		}
		maps.Copy(options, vars)
		options[PipelineDataKey] = maps.Clone(vars)

		res, err := c.execute(ctx, spec, plan, rc, ref, options, true)
		if err != nil {
			return err
		}
		if res.Success {
			rc.SetVariable(ref.ID+"_files", slices.Clone(res.Files))
			rc.SetVariable(ref.ID+"_result", res.asValue())
			continue
		}
		if ferr := c.handleFailure(ctx, spec, rc, res); ferr != nil {
			return ferr
		}
	}
	return nil
}

func (c *Composer) runParallel(ctx context.Context, spec *Spec, plan *Plan, rc *Context) error {
	for _, group := range partition(plan.Refs) {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}

		var run []Ref
		for _, ref := range group {
			if !c.optionalAllowed(ref, rc) {
				c.skipRef(ref, rc, "optional generator not enabled")
				continue
			}
			run = append(run, ref)
		}

		results := make([]*UnitResult, len(run))
		actions := make([][]RollbackAction, len(run))
		errs := make([]error, len(run))
		var wg sync.WaitGroup
		for i, ref := range run {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], actions[i], errs[i] = c.invoke(ctx, spec, plan, rc, ref, ref.Options)
				if results[i] != nil {
					rc.completed(ref.ID)
				}
			}()
		}
		wg.Wait()

		// Results are recorded in input order once the whole group is done.
		// Every member that produced a result is recorded before a
		// cancellation is reported.
		var failed *UnitResult
		var runErr error
		for i, ref := range run {
			if results[i] != nil {
				c.finish(spec, rc, ref, results[i], actions[i], false)
			}
			if errs[i] != nil {
				if runErr == nil {
					runErr = errs[i]
				}
				continue
			}
			if !results[i].Success && failed == nil {
				failed = results[i]
			}
		}
		if runErr != nil {
			return runErr
		}
		if failed != nil {
			if err := c.handleFailure(ctx, spec, rc, failed); err != nil {
				return err
			}
		}
	}
	return nil
}

// partition coalesces runs of consecutive parallel refs into one group;
// every other ref is a group of its own. Group order follows input order.
func partition(refs []Ref) [][]Ref {
	var groups [][]Ref
	var current []Ref
	for _, r := range refs {
		if r.Parallel {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		groups = append(groups, []Ref{r})
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// step runs ref and applies the error policy to a failed result.
func (c *Composer) step(ctx context.Context, spec *Spec, plan *Plan, rc *Context, ref Ref, options map[string]any) error {
	res, err := c.execute(ctx, spec, plan, rc, ref, options, true)
	if err != nil {
		return err
	}
	if !res.Success {
		return c.handleFailure(ctx, spec, rc, res)
	}
	return nil
}

// execute invokes ref and records its result.
func (c *Composer) execute(ctx context.Context, spec *Spec, plan *Plan, rc *Context, ref Ref, options map[string]any, completed bool) (*UnitResult, error) {
	res, actions, err := c.invoke(ctx, spec, plan, rc, ref, options)
	if res != nil {
		c.finish(spec, rc, ref, res, actions, completed)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Composer) finish(spec *Spec, rc *Context, ref Ref, res *UnitResult, actions []RollbackAction, completed bool) {
	if !res.Success && spec.ErrorHandling == Skip {
		res.Skipped = true
	}
	rc.record(res, actions, completed)
	out := *res
	c.events.Publish(events.GeneratorCompleted, Event{RunID: rc.RunID, Spec: spec.Name, Ref: &ref, Result: &out})
}

// handleFailure applies the error policy to a failed result. A non-nil
// return ends the run.
func (c *Composer) handleFailure(ctx context.Context, spec *Spec, rc *Context, res *UnitResult) error {
	cause := errors.New(errors.ErrCodeExecution, "%s", res.Error)
	switch spec.ErrorHandling {
	case Continue:
		c.logger.Warn("continuing after failure", "run", rc.RunID, "generator", res.ID, "error", res.Error)
		return nil
	case Skip:
		c.logger.Warn("skipping failed generator", "run", rc.RunID, "generator", res.ID, "error", res.Error)
		return nil
	case Rollback:
		c.rollback(ctx, rc)
	}
	return &errors.ExecutionError{ID: res.ID, Cause: cause}
}

// invoke runs one unit. Unit failures, including errors returned by the
// unit, become a failed result; only cancellation is returned as an error,
// alongside the result when the unit got as far as producing one.
func (c *Composer) invoke(ctx context.Context, spec *Spec, plan *Plan, rc *Context, ref Ref, options map[string]any) (*UnitResult, []RollbackAction, error) {
	d := plan.Descriptors[ref.ID]
	if d == nil {
		return nil, nil, errors.New(errors.ErrCodeInternal, "generator %s missing from plan", ref.ID)
	}

	unitCtx := observability.Composition().OnUnitStart(ctx, rc.RunID, ref.ID)
	start := time.Now()
	c.logger.Debug("running generator", "run", rc.RunID, "generator", ref.ID, "version", d.Version)

	snaps := c.snapshotOutputs(d.Outputs)
	res := &UnitResult{ID: ref.ID}
	var undo map[string]string
	var unitErr error

	u, err := c.factory.Unit(d)
	if err != nil {
		unitErr = err
	} else {
		out, err := u.Generate(unitCtx, maps.Clone(options))
		switch {
		case err != nil:
			unitErr = err
		case out == nil:
			unitErr = fmt.Errorf("unit returned no result")
		default:
			res.Success = out.Success
			res.Message = out.Message
			res.Files = slices.Clone(out.Files)
			res.Commands = slices.Clone(out.Commands)
			undo = out.Undo
			if !out.Success {
				unitErr = fmt.Errorf("%s", failureMessage(out))
			}
		}
	}
	res.Duration = time.Since(start)
	if unitErr != nil {
		res.Success = false
		res.Error = unitErr.Error()
	}
	observability.Composition().OnUnitComplete(unitCtx, rc.RunID, ref.ID, res.Success, res.Duration, unitErr)

	var actions []RollbackAction
	if res.Success {
		actions = c.actionsFor(spec, ref.ID, d.Runtime, res.Files, res.Commands, undo, snaps)
		c.logger.Info("generator completed", "run", rc.RunID, "generator", ref.ID, "files", len(res.Files), "duration", res.Duration)
	} else {
		c.logger.Warn("generator failed", "run", rc.RunID, "generator", ref.ID, "error", res.Error)
	}

	// A unit that finished while the run was being canceled still hands
	// back its result so its side effects can be compensated.
	if err := ctx.Err(); err != nil {
		return res, actions, canceled(err)
	}
	return res, actions, nil
}

func failureMessage(out *unit.Result) string {
	if out.Message != "" {
		return out.Message
	}
	return "generator reported failure"
}

// optionalAllowed gates optional refs outside the conditional strategy.
// Required refs always run.
func (c *Composer) optionalAllowed(ref Ref, rc *Context) bool {
	if !ref.Optional {
		return true
	}
	if ref.HasCondition() {
		return c.evaluate(ref, rc)
	}
	v, _ := rc.Variable(EnabledVariable(ref.ID))
	enabled, _ := v.(bool)
	return enabled
}

// evaluate reports whether ref's predicate and condition hold. Both must
// hold when both are set. An evaluation error counts as false.
func (c *Composer) evaluate(ref Ref, rc *Context) bool {
	if ref.Predicate != nil && !ref.Predicate(rc) {
		return false
	}
	if ref.Condition == "" {
		return true
	}
	vars, results := rc.scope()
	ok, err := expr.Evaluate(ref.Condition, expr.Scope{Variables: vars, Results: results})
	if err != nil {
		c.logger.Warn("condition evaluation failed", "run", rc.RunID, "generator", ref.ID, "condition", ref.Condition, "error", err)
		return false
	}
	return ok
}

func (c *Composer) skipRef(ref Ref, rc *Context, reason string) {
	c.logger.Info("skipping generator", "run", rc.RunID, "generator", ref.ID, "reason", reason)
	rc.skip(ref.ID)
}

func canceled(err error) error {
	return errors.Wrap(errors.ErrCodeCanceled, err, "composition canceled")
}
