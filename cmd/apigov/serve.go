package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apihttp "github.com/fyrsmithlabs/apigov/internal/http"
	"github.com/fyrsmithlabs/apigov/internal/services"
)

func newServeCmd(a *app) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation HTTP API",
		Long: `Serve the validation HTTP API:

  GET  /health              liveness
  GET  /metrics             Prometheus metrics
  POST /api/v1/validate     {"old_code": "...", "new_code": "...", "source": "..."}
  POST /api/v1/validate/git {"repo_path": "...", "dir_path": "...", "old_commit": "...", "new_commit": "..."}

The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if cmd.Flags().Changed("host") {
				e.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}

			reg, err := services.Open(e.cfg, e.logger, a.opts)
			if err != nil {
				return err
			}
			defer reg.Close()

			srv, err := apihttp.NewServer(reg.Runner(), e.logger, e.cfg.Server)
			if err != nil {
				return err
			}
			return serveUntilDone(ctx, srv, e)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func serveUntilDone(ctx context.Context, srv *apihttp.Server, e *env) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		e.logger.Error(shutdownCtx, "http server shutdown failed", zap.Error(err))
		return err
	}
	e.logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
