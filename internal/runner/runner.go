// Package runner drives the governance pipeline over git changes, a single code
// pair, or the built-in demo, and persists per-file artifacts.
package runner

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/artifacts"
	"github.com/fyrsmithlabs/apigov/internal/governance"
	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/revision"
)

// DemoSource names the built-in demo input.
const DemoSource = "demo.py"

// NoChangedSnippet is written to changed_snippet.txt when nothing changed.
const NoChangedSnippet = "No changed code detected."

// ErrInvalidRequest is returned for a git request missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Pipeline executes the governance stages on a prepared state.
// *governance.Pipeline satisfies it.
type Pipeline interface {
	Execute(ctx context.Context, initial governance.State) (governance.State, error)
}

// HistoryOpener opens the revision history of a repository.
type HistoryOpener func(repoPath string) (revision.History, error)

// GitOpener returns a HistoryOpener over go-git repositories reporting
// files with one of extensions.
func GitOpener(extensions []string, opts ...revision.Option) HistoryOpener {
	return func(repoPath string) (revision.History, error) {
		return revision.Open(repoPath, extensions, opts...)
	}
}

// GitRequest selects the changes a batch run analyzes.
type GitRequest struct {
	RepoPath string `json:"repo_path"`
	Dir      string `json:"dir_path,omitempty"`
	From     string `json:"old_commit"`
	To       string `json:"new_commit"`
}

// Validate checks that the request names a repository and both revisions.
func (r GitRequest) Validate() error {
	switch {
	case r.RepoPath == "":
		return fmt.Errorf("%w: repo path is required", ErrInvalidRequest)
	case r.From == "":
		return fmt.Errorf("%w: old commit is required", ErrInvalidRequest)
	case r.To == "":
		return fmt.Errorf("%w: new commit is required", ErrInvalidRequest)
	}
	return nil
}

// FileResult is the outcome for one analyzed file.
type FileResult struct {
	Path  string           `json:"path"`
	State governance.State `json:"state"`
	// ArtifactErrors lists artifact writes that failed; the analysis itself is unaffected.
	ArtifactErrors []string `json:"artifact_errors,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID string       `json:"run_id"`
	Files []FileResult `json:"files"`
}

// Runner executes pipeline runs.
type Runner struct {
	pipeline Pipeline
	store    artifacts.Store
	open     HistoryOpener
	logger   *logging.Logger
	now      func() time.Time
	repoRoot string
}

// Option configures a Runner.
type Option func(*Runner)

// WithArtifacts persists inputs and outputs to store.
func WithArtifacts(store artifacts.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithHistoryOpener overrides how repositories are opened.
func WithHistoryOpener(open HistoryOpener) Option {
	return func(r *Runner) { r.open = open }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithClock sets the time source used for run identifiers.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner.
func New(p Pipeline, opts ...Option) *Runner {
	r := &Runner{
		pipeline: p,
		open:     GitOpener(nil),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

// NewRunID returns YYYYMMDD_HHMMSS-<8 hex>.
func (r *Runner) NewRunID() string {
	id := uuid.New()
	return r.now().Format("20060102_150405") + "-" + hex.EncodeToString(id[:4])
}

// RunGit analyzes every file added or modified between req.From and req.To.
// No changed files yields a Result with no files.
func (r *Runner) RunGit(ctx context.Context, req GitRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	repoPath, err := r.resolveRepo(req.RepoPath)
	if err != nil {
		return nil, err
	}
	history, err := r.open(repoPath)
	if err != nil {
		return nil, err
	}

	dir := req.Dir
	if dir == "" {
		dir = "."
	}
	files, err := history.ChangedFiles(ctx, dir, req.From, req.To)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: r.NewRunID(), Files: []FileResult{}}
	ctx = logging.WithRunID(ctx, res.RunID)
	if len(files) == 0 {
		r.logger.Info(ctx, "no changed files found", zap.String("dir", dir),
			zap.String("from", req.From), zap.String("to", req.To))
		return res, nil
	}
	r.logger.Info(ctx, "analyzing changed files", zap.Int("count", len(files)))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fr, err := r.runFile(ctx, res.RunID, file, history, req)
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, fr)
	}
	return res, nil
}

func (r *Runner) runFile(ctx context.Context, runID, file string, history revision.History, req GitRequest) (FileResult, error) {
	fctx := logging.WithSource(ctx, file)

	state := governance.NewState("", "")
	state.RunID, state.Source = runID, file

	oldCode, _, oldErr := history.ReadFileAt(fctx, file, req.From)
	newCode, _, newErr := history.ReadFileAt(fctx, file, req.To)
	if err := errors.Join(oldErr, newErr); err != nil {
		r.logger.Warn(fctx, "reading file revisions failed", zap.Error(err))
		state = state.WithError(&governance.StageError{
			Stage:   governance.PhaseDetect,
			Kind:    governance.KindRevisionAccess,
			Message: fmt.Sprintf("Reading %s failed: %v", file, err),
			Cause:   err,
		}).WithReport(governance.NoReportPlaceholder).WithPhase(governance.PhaseDone)
		state.OldCode, state.NewCode = oldCode, newCode
		return r.persist(fctx, state), nil
	}

	state.OldCode, state.NewCode = oldCode, newCode
	return r.execute(fctx, state)
}

// RunCode analyzes a single pair of versions of source.
func (r *Runner) RunCode(ctx context.Context, source, oldCode, newCode string) (*Result, error) {
	res := &Result{RunID: r.NewRunID()}
	ctx = logging.WithSource(logging.WithRunID(ctx, res.RunID), source)

	state := governance.NewState(oldCode, newCode)
	state.RunID, state.Source = res.RunID, source

	fr, err := r.execute(ctx, state)
	if err != nil {
		return nil, err
	}
	res.Files = []FileResult{fr}
	return res, nil
}

// RunDemo analyzes the built-in Flask example.
func (r *Runner) RunDemo(ctx context.Context) (*Result, error) {
	return r.RunCode(ctx, DemoSource, DemoOldCode, DemoNewCode)
}

// execute persists inputs, runs the pipeline, then persists outputs. The only
// error is the context's, when it ended before the pipeline started.
func (r *Runner) execute(ctx context.Context, state governance.State) (FileResult, error) {
	fr := FileResult{Path: state.Source}
	r.putInputs(ctx, &fr, state)

	final, err := r.pipeline.Execute(ctx, state)
	if err != nil {
		return fr, err
	}
	r.putOutputs(ctx, &fr, final)
	return fr, nil
}

// persist writes every artifact for a state that never reached the pipeline.
func (r *Runner) persist(ctx context.Context, state governance.State) FileResult {
	fr := FileResult{Path: state.Source}
	r.putInputs(ctx, &fr, state)
	r.putOutputs(ctx, &fr, state)
	return fr
}

func (r *Runner) putInputs(ctx context.Context, fr *FileResult, state governance.State) {
	key := artifacts.FileKey(state.Source)
	oldName, newName := artifacts.CodeNames(state.Source)
	r.put(ctx, fr, state.RunID, key, oldName, state.OldCode)
	r.put(ctx, fr, state.RunID, key, newName, state.NewCode)
}

func (r *Runner) putOutputs(ctx context.Context, fr *FileResult, final governance.State) {
	fr.State = final
	key := artifacts.FileKey(final.Source)

	snippet := final.ChangedFragment
	if snippet == "" {
		snippet = NoChangedSnippet
	}
	r.put(ctx, fr, final.RunID, key, artifacts.ChangedSnippetName, snippet)
	r.put(ctx, fr, final.RunID, key, artifacts.ReportName, final.Report)
}

func (r *Runner) put(ctx context.Context, fr *FileResult, runID, key, name, content string) {
	if r.store == nil {
		return
	}
	if err := r.store.Put(ctx, runID, key, name, content); err != nil {
		r.logger.Warn(ctx, "writing artifact failed", zap.String("artifact", name), zap.Error(err))
		fr.ArtifactErrors = append(fr.ArtifactErrors, fmt.Sprintf("%s: %v", name, err))
	}
}
