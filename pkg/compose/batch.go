package compose

import (
	"context"

	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/limiter"
)

// BatchOutcome aggregates an ExecuteBatch call. Outcomes and Errors are
// index-aligned with the input specs; an outcome is nil when the spec
// failed validation or resolution.
type BatchOutcome struct {
	Outcomes  []*Outcome `json:"outcomes"`
	Errors    []error    `json:"-"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// ExecuteBatch runs independent compositions with at most limit in flight.
// A limit <= 0 runs them all at once. Specs never share a run context.
func (c *Composer) ExecuteBatch(ctx context.Context, specs []*Spec, limit int) *BatchOutcome {
	ops := make([]limiter.Op[*Outcome], len(specs))
	for i, spec := range specs {
		ops[i] = func(ctx context.Context) (*Outcome, error) {
			return c.Execute(ctx, spec)
		}
	}

	results := limiter.Run(ctx, limit, ops)
	batch := &BatchOutcome{
		Outcomes: make([]*Outcome, len(results)),
		Errors:   make([]error, len(results)),
	}
	for i, r := range results {
		batch.Outcomes[i] = r.Value
		batch.Errors[i] = r.Err
		if r.Err == nil && r.Value != nil && r.Value.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}

	c.logger.Info("batch finished", "compositions", len(specs), "succeeded", batch.Succeeded, "failed", batch.Failed)
	c.events.Publish(events.BatchCompleted, Event{Batch: batch})
	return batch
}
