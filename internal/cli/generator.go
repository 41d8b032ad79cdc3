package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/registry"
)

// generatorCommand creates the generator management command.
func (c *CLI) generatorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generator",
		Aliases: []string{"gen"},
		Short:   "Manage registered generators",
	}

	cmd.AddCommand(c.generatorAddCommand())
	cmd.AddCommand(c.generatorRemoveCommand())
	cmd.AddCommand(c.generatorListCommand())
	cmd.AddCommand(c.generatorShowCommand())
	cmd.AddCommand(c.generatorDepsCommand())
	cmd.AddCommand(c.generatorDependentsCommand())

	return cmd
}

// generatorAddCommand creates the "generator add" subcommand.
func (c *CLI) generatorAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <manifest>...",
		Short: "Register generators from manifest files",
		Long: `Register generators from manifest files (generator.toml, generator.yaml,
generator.yml or generator.json). Registered generators persist in the
configured store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			for _, file := range args {
				d, err := e.loader.LoadFile(ctx, file, "")
				if err != nil {
					return err
				}
				if err := e.reg.Register(ctx, d); err != nil {
					return err
				}
				printSuccess("Registered %s %s", StyleHighlight.Render(d.ID), StyleDim.Render(d.Version))
			}
			return nil
		},
	}
}

// generatorRemoveCommand creates the "generator remove" subcommand.
func (c *CLI) generatorRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "remove <id>",
		Aliases:           []string{"rm"},
		Short:             "Unregister a generator",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeGeneratorIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			if err := e.reg.Unregister(ctx, args[0]); err != nil {
				var dependents *errors.DependentsExistError
				if errors.As(err, &dependents) {
					printError("%s is required by %s", args[0], strings.Join(dependents.Dependents, ", "))
				}
				return err
			}
			printSuccess("Unregistered %s", StyleHighlight.Render(args[0]))
			return nil
		},
	}
}

// generatorListCommand creates the "generator list" subcommand.
func (c *CLI) generatorListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered generators and manifests",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)
			e.loadManifests(ctx)

			ds := e.reg.List()
			if asJSON {
				if ds == nil {
					ds = []*registry.Descriptor{}
				}
				return printJSON(ds)
			}
			if len(ds) == 0 {
				printInfo("No generators registered")
				printNextStep("Register one with", "stackforge generator add generator.toml")
				return nil
			}
			for _, d := range ds {
				line := StyleHighlight.Render(d.ID) + " " + StyleDim.Render(d.Version)
				if d.Description != "" {
					line += "  " + d.Description
				}
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors as JSON")
	return cmd
}

// generatorShowCommand creates the "generator show" subcommand.
func (c *CLI) generatorShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:               "show <id>",
		Short:             "Show a generator's descriptor",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeGeneratorIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			d, err := e.reg.Resolve(ctx, args[0], "")
			if err != nil {
				return err
			}
			if d == nil {
				return &errors.NotFoundError{ID: args[0]}
			}
			if asJSON {
				return printJSON(d)
			}

			fmt.Fprintln(stdout, StyleTitle.Render(d.Name))
			printKeyValue("id", d.ID)
			printKeyValue("version", d.Version)
			if d.Description != "" {
				printKeyValue("description", d.Description)
			}
			runtime := d.Runtime
			if runtime == "" {
				runtime = "shell"
			}
			printKeyValue("runtime", runtime)
			if d.Run != "" {
				printKeyValue("run", d.Run)
			}
			for _, dep := range d.Dependencies {
				printKeyValue("depends on", formatDependency(dep))
			}
			if len(d.Conflicts) > 0 {
				printKeyValue("conflicts", strings.Join(d.Conflicts, ", "))
			}
			if len(d.Tags) > 0 {
				printKeyValue("tags", strings.Join(d.Tags, ", "))
			}
			for _, o := range d.Outputs {
				printFile(o)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the descriptor as JSON")
	return cmd
}

// generatorDepsCommand creates the "generator deps" subcommand.
func (c *CLI) generatorDepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "deps <id>",
		Short:             "Print a generator's dependencies in execution order",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeGeneratorIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			order, err := e.reg.ResolveDependencies(ctx, args[0])
			if err != nil {
				var cycle *errors.CircularDependencyError
				if errors.As(err, &cycle) {
					printError("cycle: %s", strings.Join(cycle.Chain, " → "))
				}
				return err
			}
			for i, d := range order {
				fmt.Fprintf(stdout, "%s %s %s\n", StyleDim.Render(fmt.Sprintf("%2d.", i+1)), StyleHighlight.Render(d.ID), StyleDim.Render(d.Version))
			}
			return nil
		},
	}
}

// generatorDependentsCommand creates the "generator dependents" subcommand.
func (c *CLI) generatorDependentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "dependents <id>",
		Short:             "List generators that depend on a generator",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeGeneratorIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)
			e.loadManifests(ctx)

			for _, id := range e.reg.Dependents(args[0]) {
				fmt.Fprintln(stdout, id)
			}
			return nil
		},
	}
}

func formatDependency(dep registry.Dependency) string {
	s := dep.ID
	if dep.Range != "" {
		s += "@" + dep.Range
	}
	if !dep.Required {
		s += " (optional)"
	}
	return s
}
