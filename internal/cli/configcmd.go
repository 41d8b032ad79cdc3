package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackforge/internal/config"
)

// configCommand creates the configuration command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stackforge configuration",
	}

	cmd.AddCommand(c.configInitCommand())
	cmd.AddCommand(c.configShowCommand())

	return cmd
}

// configInitCommand creates the "config init" subcommand.
func (c *CLI) configInitCommand() *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a default config file",
		Long:        "Write a commented default config file to .stackforge/config.yaml, the user config (--user) or the given path.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.LocalPath
			switch {
			case len(args) == 1:
				path = args[0]
			case user:
				p, err := userConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			printSuccess("Wrote %s", path)
			printNextStep("Check the effective settings with", "stackforge config show")
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "write ~/.config/stackforge/config.yaml")
	return cmd
}

// configShowCommand creates the "config show" subcommand.
func (c *CLI) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(c.viper.AllSettings())
		},
	}
}
