// Package unit defines how the composer invokes generator units.
//
// A [Unit] is the executable behind a registered descriptor. It receives
// an options bag and reports what it produced. The composer never looks at
// file contents, only at the paths a unit reports, which it records for
// rollback.
//
// Units are built by a [Factory]. [Runtimes] is the default factory: a
// table of named runtimes keyed by the descriptor's Runtime field, plus
// per-id bindings for units implemented in Go.
package unit

import (
	"context"
	"slices"
)

// Unit generates code for one generator.
type Unit interface {
	Generate(ctx context.Context, options map[string]any) (*Result, error)
}

// Result reports the outcome of one unit invocation.
type Result struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Files    []string `json:"files,omitempty"`
	Commands []string `json:"commands,omitempty"`

	// Undo maps a reported command to the command that reverses it.
	Undo map[string]string `json:"undo,omitempty"`
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Files = slices.Clone(r.Files)
	c.Commands = slices.Clone(r.Commands)
	if r.Undo != nil {
		c.Undo = make(map[string]string, len(r.Undo))
		for k, v := range r.Undo {
			c.Undo[k] = v
		}
	}
	return &c
}

// Func adapts a function to the Unit interface.
type Func func(ctx context.Context, options map[string]any) (*Result, error)

// Generate implements Unit.
func (f Func) Generate(ctx context.Context, options map[string]any) (*Result, error) {
	return f(ctx, options)
}
