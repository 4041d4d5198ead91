package runner

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WithRepoRoot restricts git runs to repositories under root. Servers set it so
// that callers cannot point a run at arbitrary directories.
func WithRepoRoot(root string) Option {
	return func(r *Runner) { r.repoRoot = root }
}

// resolveRepo cleans repoPath and, when a root is configured, checks that it
// stays inside it. Relative paths resolve against the root.
func (r *Runner) resolveRepo(repoPath string) (string, error) {
	if r.repoRoot == "" {
		return repoPath, nil
	}

	root, err := filepath.Abs(r.repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolving repo root: %w", err)
	}
	p := filepath.Clean(repoPath)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: repo path %s is outside %s", ErrInvalidRequest, repoPath, root)
	}
	return p, nil
}
