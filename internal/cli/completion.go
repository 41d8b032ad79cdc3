package cli

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// completionGenerators maps each supported shell to its cobra generator.
var completionGenerators = map[string]func(*cobra.Command, io.Writer) error{
	"bash":       func(c *cobra.Command, w io.Writer) error { return c.GenBashCompletionV2(w, true) },
	"zsh":        func(c *cobra.Command, w io.Writer) error { return c.GenZshCompletion(w) },
	"fish":       func(c *cobra.Command, w io.Writer) error { return c.GenFishCompletion(w, true) },
	"powershell": func(c *cobra.Command, w io.Writer) error { return c.GenPowerShellCompletionWithDesc(w) },
}

func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion bash|zsh|fish|powershell",
		Short: "Print a shell completion script",
		Long: `Print a completion script for stackforge. Generator ids, spec files
and flag values complete once the script is loaded.

  source <(stackforge completion bash)
  stackforge completion zsh > "${fpath[1]}/_stackforge"
  stackforge completion fish > ~/.config/fish/completions/stackforge.fish
  stackforge completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Annotations:           map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionGenerators[args[0]](cmd.Root(), stdout)
		},
	}
}

// completeGeneratorIDs completes the <id> argument from the registry and the
// manifest directory. Logs are discarded so they never reach the shell.
func (c *CLI) completeGeneratorIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = withLogger(ctx, log.New(io.Discard))
	e, err := c.open(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer e.Close(ctx)
	e.loadManifests(ctx)

	var ids []string
	for _, d := range e.reg.List() {
		if strings.HasPrefix(d.ID, toComplete) {
			ids = append(ids, d.ID+"\t"+d.Description)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}
