package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/matzehuels/stackforge/internal/config"
)

// appName names the binary and its config and cache directories.
const appName = "stackforge"

// Levels accepted by New.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI carries what every command shares: the logger, the loaded config and
// the persistent flags.
type CLI struct {
	Logger *log.Logger

	viper      *viper.Viper
	cfg        config.Config
	configPath string
	verbose    bool
	noCache    bool
}

// New returns a CLI logging to w at level. Config is loaded later, when a
// command runs.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		viper:  config.New(),
		cfg:    config.Defaults(),
	}
}

func (c *CLI) SetLogLevel(level log.Level) { c.Logger.SetLevel(level) }

// Config returns the loaded configuration.
func (c *CLI) Config() config.Config { return c.cfg }

// cacheDir is $XDG_CACHE_HOME/stackforge, or ~/.cache/stackforge.
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// userConfigPath is where `config init --user` writes.
func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.yaml"), nil
}
