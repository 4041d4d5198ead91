// Package revision reads source files and change lists from git history.
package revision

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// ErrRevisionAccess is returned when the repository or a revision cannot be read.
var ErrRevisionAccess = errors.New("revision access failed")

// History reads file contents and change lists between revisions.
type History interface {
	// ReadFileAt returns the content of path at rev. ok is false when the file does
	// not exist at that revision.
	ReadFileAt(ctx context.Context, path, rev string) (content string, ok bool, err error)

	// ChangedFiles lists files added or modified under dir between from and to.
	ChangedFiles(ctx context.Context, dir, from, to string) ([]string, error)
}

// GitHistory implements History on a local git repository.
type GitHistory struct {
	repo       *git.Repository
	root       string
	extensions []string
	exclude    []string
	ignoreFile string
}

var _ History = (*GitHistory)(nil)

// Open opens the repository containing repoPath, searching parent directories.
// Only files with one of extensions are reported by ChangedFiles; an empty list
// reports every file. Files matched by DefaultIgnoreFile in the target revision
// are skipped unless WithIgnoreFile says otherwise.
func Open(repoPath string, extensions []string, opts ...Option) (*GitHistory, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: opening repository %s: %v", ErrRevisionAccess, repoPath, err)
	}

	root := repoPath
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}

	h := &GitHistory{repo: repo, root: root, extensions: extensions, ignoreFile: DefaultIgnoreFile}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Root returns the repository working directory.
func (h *GitHistory) Root() string {
	return h.root
}

func (h *GitHistory) commit(rev string) (*object.Commit, error) {
	hash, err := h.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %q: %v", ErrRevisionAccess, rev, err)
	}
	c, err := h.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: loading commit %s: %v", ErrRevisionAccess, hash, err)
	}
	return c, nil
}

// ReadFileAt returns the content of filePath at rev.
func (h *GitHistory) ReadFileAt(ctx context.Context, filePath, rev string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	c, err := h.commit(rev)
	if err != nil {
		return "", false, err
	}

	f, err := c.File(filePath)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading %s at %s: %v", ErrRevisionAccess, filePath, rev, err)
	}

	content, err := f.Contents()
	if err != nil {
		return "", false, fmt.Errorf("%w: reading %s at %s: %v", ErrRevisionAccess, filePath, rev, err)
	}
	return content, true, nil
}

// ChangedFiles lists files added or modified under dir between from and to,
// sorted by path. A dir of "." or "" means the repository root.
func (h *GitHistory) ChangedFiles(ctx context.Context, dir, from, to string) ([]string, error) {
	oldCommit, err := h.commit(from)
	if err != nil {
		return nil, err
	}
	newCommit, err := h.commit(to)
	if err != nil {
		return nil, err
	}

	oldTree, err := oldCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: tree for %s: %v", ErrRevisionAccess, from, err)
	}
	newTree, err := newCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: tree for %s: %v", ErrRevisionAccess, to, err)
	}

	changes, err := oldTree.DiffContext(ctx, newTree)
	if err != nil {
		return nil, fmt.Errorf("%w: diffing %s..%s: %v", ErrRevisionAccess, from, to, err)
	}

	matcher, err := h.excludeMatcher(newCommit)
	if err != nil {
		return nil, err
	}

	prefix := normalizeDir(dir)
	var files []string
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, fmt.Errorf("%w: classifying change: %v", ErrRevisionAccess, err)
		}
		if action != merkletrie.Insert && action != merkletrie.Modify {
			continue
		}
		name := change.To.Name
		if inDir(name, prefix) && h.matchesExtension(name) && !excluded(matcher, name) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (h *GitHistory) matchesExtension(name string) bool {
	if len(h.extensions) == 0 {
		return true
	}
	ext := path.Ext(name)
	for _, e := range h.extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func normalizeDir(dir string) string {
	dir = strings.Trim(path.Clean(strings.ReplaceAll(dir, "\\", "/")), "/")
	if dir == "." {
		return ""
	}
	return dir
}

func inDir(name, dir string) bool {
	return dir == "" || strings.HasPrefix(name, dir+"/")
}
