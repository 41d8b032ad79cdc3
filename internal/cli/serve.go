package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/internal/api"
	"github.com/matzehuels/stackforge/pkg/manifest"
)

// serveCommand creates the API server command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry and composition HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.API.Addr
			}
			if !cmd.Flags().Changed("watch") {
				watch = c.cfg.Compose.Watch
			}
			return c.runServe(cmd.Context(), addr, watch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "register new manifests as they appear in the generators directory")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string, watch bool) error {
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close(ctx)
	e.loadManifests(ctx)

	handler := api.NewHandler(api.HandlerConfig{Registry: e.reg, Composer: e.composer, Logger: e.logger})
	srv, err := api.NewServer(api.ServerConfig{Addr: addr, Handler: handler, Logger: e.logger})
	if err != nil {
		return err
	}

	if watch {
		stop, err := c.watchManifests(ctx, e)
		if err != nil {
			return err
		}
		defer stop()
	}

	printSuccess("Serving %d generators on %s", e.reg.Len(), StyleHighlight.Render("http://"+srv.Addr()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}

// watchManifests registers manifests added under the generators directory
// while the server runs.
func (c *CLI) watchManifests(ctx context.Context, e *env) (func(), error) {
	w, err := manifest.NewWatcher(manifest.DefaultWatchConfig(e.loader.Dir()))
	if err != nil {
		return nil, err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return nil, err
	}
	e.logger.Info("watching manifests", "dir", e.loader.Dir())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				added, err := manifest.Register(ctx, e.loader, e.reg)
				if err != nil {
					e.logger.Warn("manifest reload incomplete", "error", err)
				}
				for _, id := range added {
					e.logger.Info("registered generator from manifest", "id", id)
				}
			}
		}
	}()
	return func() { _ = w.Stop() }, nil
}
