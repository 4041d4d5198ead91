package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/apigov/internal/services"
)

func newIngestCmd(a *app) *cobra.Command {
	var policyFile string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a markdown policy document",
		Long: `Split a markdown policy document on its top-level headers, chunk each
category and rebuild the policy index from the result.

Examples:
  apigov ingest --policy-file docs/api-policies.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			e, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			reg, err := services.OpenIngest(e.cfg, e.logger, a.opts)
			if err != nil {
				return err
			}
			defer reg.Close()

			summary, err := reg.Ingester().IngestFile(ctx, policyFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %d categories in %s into %q.\n",
				summary.Chunks, summary.Categories, summary.Source, e.cfg.VectorStore.Collection)
			return nil
		},
	}
	cmd.Flags().StringVar(&policyFile, "policy-file", "", "markdown policy document to index")
	_ = cmd.MarkFlagRequired("policy-file")
	return cmd
}
