package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/specfile"
)

// composeOpts holds the command-line flags shared by compose subcommands.
type composeOpts struct {
	asJSON    bool
	limit     int
	vars      []string // key=value overrides for spec variables
	execution string
	onError   string
	rollback  string
}

// composeCommand creates the composition command.
func (c *CLI) composeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Run or plan compositions of generators",
	}

	cmd.AddCommand(c.composeRunCommand())
	cmd.AddCommand(c.composePlanCommand())

	return cmd
}

func (o *composeOpts) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print results as JSON")
	cmd.Flags().StringArrayVar(&o.vars, "var", nil, "set a spec variable (key=value, repeatable)")
	cmd.Flags().StringVar(&o.execution, "execution", "", "override the execution strategy: sequential, parallel, conditional, pipeline")
	cmd.Flags().StringVar(&o.onError, "on-error", "", "override the error policy: fail-fast, continue, rollback, skip")
	cmd.Flags().StringVar(&o.rollback, "rollback", "", "override the rollback strategy: none, files, full, custom")
}

// composeRunCommand creates the "compose run" subcommand.
func (c *CLI) composeRunCommand() *cobra.Command {
	var opts composeOpts
	cmd := &cobra.Command{
		Use:   "run <spec>...",
		Short: "Run compositions from spec files",
		Long: `Run compositions from spec files (YAML, TOML, JSON or HCL).

Several spec files run as a batch with at most --limit compositions at a
time (compose.batch_limit in the config).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := opts.loadSpecs(args)
			if err != nil {
				return err
			}
			return c.runCompose(cmd.Context(), specs, &opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum concurrent compositions (default compose.batch_limit)")
	return cmd
}

// composePlanCommand creates the "compose plan" subcommand.
func (c *CLI) composePlanCommand() *cobra.Command {
	var opts composeOpts
	cmd := &cobra.Command{
		Use:   "plan <spec>",
		Short: "Resolve a composition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := opts.loadSpecs(args)
			if err != nil {
				return err
			}
			return c.runPlan(cmd.Context(), specs[0], &opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func (o *composeOpts) loadSpecs(paths []string) ([]*compose.Spec, error) {
	overrides, err := parseVars(o.vars)
	if err != nil {
		return nil, err
	}
	specs := make([]*compose.Spec, 0, len(paths))
	for _, p := range paths {
		spec, err := specfile.Load(p)
		if err != nil {
			return nil, err
		}
		if o.execution != "" {
			spec.Execution = compose.Strategy(o.execution)
		}
		if o.onError != "" {
			spec.ErrorHandling = compose.ErrorPolicy(o.onError)
		}
		if o.rollback != "" {
			spec.Rollback = compose.RollbackStrategy(o.rollback)
		}
		if len(overrides) > 0 && spec.Variables == nil {
			spec.Variables = make(map[string]any, len(overrides))
		}
		for k, v := range overrides {
			spec.Variables[k] = v
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseVars parses key=value pairs. Values are YAML scalars, so "true"
// becomes a bool and "3" an int; anything else stays a string.
func parseVars(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q (want key=value)", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		if _, nested := v.(map[string]any); nested {
			v = raw
		}
		if _, list := v.([]any); list {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func (c *CLI) runCompose(ctx context.Context, specs []*compose.Spec, opts *composeOpts) error {
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close(ctx)

	var spinner *Spinner
	if !opts.asJSON && !c.verbose {
		spinner = newSpinner(ctx, fmt.Sprintf("Composing %d spec(s)...", len(specs)))
		spinner.Start()
	}
	stopSpinner := func() {
		if spinner != nil {
			spinner.Stop()
		}
	}
	defer stopSpinner()

	// Per-generator progress goes to the spinner, or to the debug log in
	// verbose mode.
	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	updates := e.events.Subscribe(sub)
	go func() {
		finished := 0
		for ev := range updates {
			if ev.Type != events.GeneratorCompleted || ev.Payload.Result == nil {
				continue
			}
			finished++
			e.logger.Debug("generator completed", "spec", ev.Payload.Spec, "id", ev.Payload.Result.ID, "success", ev.Payload.Result.Success)
			if spinner != nil {
				spinner.Update(fmt.Sprintf("Composing %d spec(s)... %d generator(s) done", len(specs), finished))
			}
		}
	}()

	if len(specs) == 1 {
		out, err := e.composer.Execute(ctx, specs[0])
		stopSpinner()
		if out == nil {
			return err
		}
		if opts.asJSON {
			if jerr := printJSON(out); jerr != nil {
				return jerr
			}
		} else {
			printOutcome(out)
		}
		if err != nil {
			return err
		}
		if !out.Success {
			return fmt.Errorf("composition %s failed", out.Spec)
		}
		return nil
	}

	limit := opts.limit
	if limit <= 0 {
		limit = c.cfg.Compose.BatchLimit
	}
	timer := startStopwatch(e.logger)
	batch := e.composer.ExecuteBatch(ctx, specs, limit)
	stopSpinner()
	timer.done("batch finished", "specs", len(specs), "failed", batch.Failed, "limit", limit)
	if opts.asJSON {
		if err := printJSON(batch); err != nil {
			return err
		}
	} else {
		for i, out := range batch.Outcomes {
			if out == nil {
				printError("%s: %v", specs[i].Name, batch.Errors[i])
				continue
			}
			fmt.Fprintln(stdout, StyleTitle.Render(out.Spec))
			printOutcome(out)
		}
	}
	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d compositions failed", batch.Failed, len(specs))
	}
	printSuccess("%d compositions succeeded", batch.Succeeded)
	return nil
}

func (c *CLI) runPlan(ctx context.Context, spec *compose.Spec, opts *composeOpts) error {
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close(ctx)

	plan, err := e.composer.Plan(ctx, spec)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return printJSON(plan)
	}

	synthesized := 0
	for _, r := range plan.Refs {
		if r.Synthesized {
			synthesized++
		}
	}
	fmt.Fprintln(stdout, StyleTitle.Render(plan.Spec)+" "+StyleDim.Render(fmt.Sprintf("%s · %s · rollback %s", plan.Execution, plan.ErrorHandling, plan.Rollback)))
	printPlanStats(len(plan.Refs), synthesized, plan.Cached)
	for i, step := range plan.Steps() {
		ids := make([]string, len(step))
		for j, r := range step {
			ids[j] = describeRef(r, plan)
		}
		fmt.Fprintf(stdout, "%s %s\n", StyleDim.Render(fmt.Sprintf("%2d.", i+1)), strings.Join(ids, StyleDim.Render(" | ")))
	}
	return nil
}

func describeRef(r compose.Ref, plan *compose.Plan) string {
	s := StyleHighlight.Render(r.ID)
	if d, ok := plan.Descriptors[r.ID]; ok {
		s += " " + StyleDim.Render(d.Version)
	}
	var notes []string
	if r.Synthesized {
		notes = append(notes, "implicit")
	}
	if r.Optional {
		notes = append(notes, "optional")
	}
	if r.Condition != "" {
		notes = append(notes, "if "+r.Condition)
	}
	if len(notes) > 0 {
		s += " " + StyleDim.Render("("+strings.Join(notes, ", ")+")")
	}
	return s
}
