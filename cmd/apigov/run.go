package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/apigov/internal/artifacts"
	"github.com/fyrsmithlabs/apigov/internal/runner"
	"github.com/fyrsmithlabs/apigov/internal/services"
)

const reportRule = "-------------------------"

func newRunCmd(a *app) *cobra.Command {
	var req runner.GitRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate the files changed between two commits",
		Long: `Validate every file added or modified between --old-commit and --new-commit
in the repository at --repo-path, optionally limited to --dir-path.

When --repo-path, --old-commit or --new-commit is missing the built-in demo
runs instead.

Examples:
  # Compare the working branch against main
  apigov run --repo-path . --old-commit main --new-commit HEAD

  # Only look at the api/ directory
  apigov run --repo-path ~/src/svc --dir-path api --old-commit HEAD~1 --new-commit HEAD`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.RepoPath == "" || req.From == "" || req.To == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No Git arguments provided (--repo-path, --old-commit, --new-commit are required). Running demo...")
				return a.runDemo(cmd)
			}
			return a.runGit(cmd, req)
		},
	}
	cmd.Flags().StringVar(&req.RepoPath, "repo-path", "", "path to the local Git repository")
	cmd.Flags().StringVar(&req.Dir, "dir-path", ".", "directory within the repository to analyze")
	cmd.Flags().StringVar(&req.From, "old-commit", "", "old commit hash or reference (e.g. main, HEAD~1)")
	cmd.Flags().StringVar(&req.To, "new-commit", "", "new commit hash or reference (e.g. HEAD)")
	return cmd
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Validate the built-in Flask example change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd)
		},
	}
}

func (a *app) runDemo(cmd *cobra.Command) error {
	return a.withRunner(cmd, func(ctx context.Context, reg *services.Registry) error {
		fmt.Fprintln(cmd.OutOrStdout(), "--- Running Validation on Demo Code ---")
		res, err := reg.Runner().RunDemo(ctx)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), reg.Config().Artifacts.Dir, res)
		return nil
	})
}

func (a *app) runGit(cmd *cobra.Command, req runner.GitRequest) error {
	return a.withRunner(cmd, func(ctx context.Context, reg *services.Registry) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "--- Running Validation on Git Changes ---")
		fmt.Fprintf(out, "Searching for changed files in directory '%s'...\n", req.Dir)
		res, err := reg.Runner().RunGit(ctx, req)
		if err != nil {
			return err
		}
		if len(res.Files) == 0 {
			fmt.Fprintln(out, "No changed files found in the specified directory and commit range.")
			return nil
		}
		fmt.Fprintf(out, "Found %d changed files to analyze.\n", len(res.Files))
		printResult(out, cmd.ErrOrStderr(), reg.Config().Artifacts.Dir, res)
		return nil
	})
}

// withRunner opens the validation services for the duration of fn.
func (a *app) withRunner(cmd *cobra.Command, fn func(context.Context, *services.Registry) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

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

	return fn(ctx, reg)
}

// printResult writes each file's report to stdout and its stage error, if
// any, to stderr.
func printResult(stdout, stderr io.Writer, artifactsDir string, res *runner.Result) {
	multi := len(res.Files) > 1
	for _, f := range res.Files {
		if multi {
			fmt.Fprintf(stdout, "\n--- Analyzing file: %s ---\n", f.Path)
		}
		fmt.Fprintln(stdout, "\n--- Governance Report ---")
		if f.State.Err != nil {
			fmt.Fprintf(stderr, "An error occurred: %s\n", f.State.Err.Message)
		}
		fmt.Fprintln(stdout, f.State.Report)
		fmt.Fprintln(stdout, reportRule)
		for _, msg := range f.ArtifactErrors {
			fmt.Fprintf(stderr, "Artifact not saved: %s\n", msg)
		}
		fmt.Fprintf(stdout, "Full report and artifacts saved in: %s\n",
			filepath.Join(artifactsDir, res.RunID, artifacts.FileKey(f.Path)))
	}
}
