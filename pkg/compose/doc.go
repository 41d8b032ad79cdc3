// Package compose runs compositions: ordered sets of generator refs that
// are validated against the registry, expanded with their implicit
// dependencies and executed under one of four strategies.
//
// # Strategies
//
//   - sequential runs refs by ascending Order.
//   - parallel coalesces consecutive parallel refs into groups that run
//     concurrently; groups run one after another.
//   - conditional keeps input order and skips refs whose condition or
//     predicate is false.
//   - pipeline runs by Order and threads each step's files and result into
//     the variables the next steps receive.
//
// # Failures
//
// The error policy decides what a failed unit does to the run. fail-fast
// stops, rollback stops after replaying the recorded compensating actions
// in reverse, continue and skip carry on. Rollback is best effort: failed
// actions are reported on the Outcome and never returned.
//
// # Conditions
//
// Conditions are expressions over variables and results, for example:
//
//	variables.framework == "gin" && results.model.success
//
// See package expr for the accepted syntax.
package compose
