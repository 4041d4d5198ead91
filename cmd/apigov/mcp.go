package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/apigov/internal/mcp"
	"github.com/fyrsmithlabs/apigov/internal/services"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the validation tools over MCP stdio",
		Long: `Run an MCP server on stdin/stdout exposing the validate_api_change and
validate_git_changes tools. Logs go to stderr.

Example client configuration:
  {"mcpServers": {"apigov": {"command": "apigov", "args": ["mcp"]}}}`,
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

			reg, err := services.Open(e.cfg, e.logger, a.opts)
			if err != nil {
				return err
			}
			defer reg.Close()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:    "apigov",
				Version: version,
				Logger:  e.logger,
			}, reg.Runner())
			if err != nil {
				return err
			}
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
