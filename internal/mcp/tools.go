package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/apigov/internal/governance"
	"github.com/fyrsmithlabs/apigov/internal/runner"
)

const (
	toolValidateChange = "validate_api_change"
	toolValidateGit    = "validate_git_changes"
)

type validateChangeInput struct {
	OldCode string `json:"old_code" jsonschema:"Previous version of the source file; empty for a new file"`
	NewCode string `json:"new_code" jsonschema:"Current version of the source file"`
	Source  string `json:"source,omitempty" jsonschema:"File path used to label logs and artifacts"`
}

type validateGitInput struct {
	RepoPath  string `json:"repo_path" jsonschema:"Path to a local git repository"`
	DirPath   string `json:"dir_path,omitempty" jsonschema:"Directory within the repository to analyze (default: repository root)"`
	OldCommit string `json:"old_commit" jsonschema:"Old revision, e.g. main or HEAD~1"`
	NewCommit string `json:"new_commit" jsonschema:"New revision, e.g. HEAD"`
}

// stageErrorOutput is the failure recorded by a pipeline stage.
type stageErrorOutput struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// fileOutput is the validation result for one file.
type fileOutput struct {
	Path              string            `json:"path"`
	ChangedFragment   string            `json:"changed_fragment"`
	ChangeSummary     string            `json:"change_summary"`
	RetrievedPolicies []string          `json:"retrieved_policies"`
	Verdicts          []string          `json:"verdicts"`
	Report            string            `json:"report"`
	Error             *stageErrorOutput `json:"error,omitempty"`
}

type validateOutput struct {
	RunID string       `json:"run_id"`
	Files []fileOutput `json:"files"`
}

func toOutput(res *runner.Result) validateOutput {
	out := validateOutput{RunID: res.RunID, Files: make([]fileOutput, len(res.Files))}
	for i, f := range res.Files {
		out.Files[i] = toFileOutput(f.Path, f.State)
	}
	return out
}

func toFileOutput(path string, s governance.State) fileOutput {
	fo := fileOutput{
		Path:              path,
		ChangedFragment:   s.ChangedFragment,
		ChangeSummary:     s.ChangeSummary,
		RetrievedPolicies: s.RetrievedPolicies,
		Verdicts:          s.Verdicts,
		Report:            s.Report,
	}
	if fo.RetrievedPolicies == nil {
		fo.RetrievedPolicies = []string{}
	}
	if fo.Verdicts == nil {
		fo.Verdicts = []string{}
	}
	if s.Err != nil {
		fo.Error = &stageErrorOutput{Stage: string(s.Err.Stage), Kind: string(s.Err.Kind), Message: s.Err.Message}
	}
	return fo
}

// reportText renders the reports as the tool's text content.
func reportText(out validateOutput) string {
	if len(out.Files) == 0 {
		return fmt.Sprintf("Run %s: no changed files found.", out.RunID)
	}
	var b strings.Builder
	for i, f := range out.Files {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if len(out.Files) > 1 {
			fmt.Fprintf(&b, "# %s\n\n", f.Path)
		}
		if f.Error != nil {
			fmt.Fprintf(&b, "An error occurred: %s\n\n", f.Error.Message)
		}
		b.WriteString(f.Report)
	}
	return b.String()
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolValidateChange,
		Description: "Validate an API code change against the governance policies. Returns the changed code, the policies checked, one verdict per policy and a markdown report.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args validateChangeInput) (*mcp.CallToolResult, validateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, toolValidateChange)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, toolValidateChange)
			s.metrics.RecordInvocation(ctx, toolValidateChange, time.Since(start), toolErr)
		}()

		if args.OldCode == "" && args.NewCode == "" {
			toolErr = fmt.Errorf("%w: old_code or new_code is required", runner.ErrInvalidRequest)
			return nil, validateOutput{}, toolErr
		}
		source := args.Source
		if source == "" {
			source = "request"
		}

		res, err := s.runner.RunCode(ctx, source, args.OldCode, args.NewCode)
		if err != nil {
			toolErr = fmt.Errorf("validation failed: %w", err)
			s.logToolError(ctx, toolValidateChange, err)
			return nil, validateOutput{}, toolErr
		}

		out := toOutput(res)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: reportText(out)}},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolValidateGit,
		Description: "Validate every file added or modified between two revisions of a local git repository against the governance policies.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args validateGitInput) (*mcp.CallToolResult, validateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, toolValidateGit)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, toolValidateGit)
			s.metrics.RecordInvocation(ctx, toolValidateGit, time.Since(start), toolErr)
		}()

		res, err := s.runner.RunGit(ctx, runner.GitRequest{
			RepoPath: args.RepoPath,
			Dir:      args.DirPath,
			From:     args.OldCommit,
			To:       args.NewCommit,
		})
		if err != nil {
			toolErr = fmt.Errorf("validation failed: %w", err)
			s.logToolError(ctx, toolValidateGit, err)
			return nil, validateOutput{}, toolErr
		}

		out := toOutput(res)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: reportText(out)}},
		}, out, nil
	})
}
