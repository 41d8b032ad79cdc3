package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/internal/config"
	"github.com/matzehuels/stackforge/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// Before any subcommand runs, configuration is loaded (flags, then
// STACKFORGE_* variables, then the config file, then defaults) and the
// logger is attached to the command context.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Stackforge composes code generators",
		Long: `Stackforge keeps a registry of code generators with versioned dependencies
and conflicts, and runs compositions of them in dependency order with
sequential, parallel, conditional or pipeline execution.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default .stackforge/config.yaml or ~/.config/stackforge/config.yaml)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the manifest and plan cache")
	flags.String("generators-dir", "", "directory holding generator manifests")
	flags.String("store", "", "registry store backend: file, sqlite, mongo or none")
	flags.String("work-dir", "", "directory generators write to")
	_ = c.viper.BindPFlag("generators_dir", flags.Lookup("generators-dir"))
	_ = c.viper.BindPFlag("store.backend", flags.Lookup("store"))
	_ = c.viper.BindPFlag("work_dir", flags.Lookup("work-dir"))

	// Register all subcommands
	root.AddCommand(c.generatorCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.composeCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	// config init must work even when the existing config is broken.
	if cmd.Annotations[skipConfig] == "true" {
		cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		return nil
	}

	cfg, used, err := config.Load(c.viper, c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.SetLogLevel(cfg.LogLevel())
	if c.verbose {
		c.SetLogLevel(LogDebug)
	}
	if used != "" {
		c.Logger.Debug("loaded config", "path", used)
	}
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

// skipConfig is a command annotation that skips config loading.
const skipConfig = "stackforge/skip-config"
