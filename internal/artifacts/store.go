// Package artifacts persists the inputs and outputs of each analyzed file.
//
// Layout:
//
//	{dir}/
//	└── {runID}/
//	    └── {fileKey}/          ← FileKey(source path)
//	        ├── old_code.py
//	        ├── new_code.py
//	        ├── changed_snippet.txt
//	        └── report.md
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// File names written for each analyzed file.
const (
	ChangedSnippetName = "changed_snippet.txt"
	ReportName         = "report.md"
)

// Errors for artifact operations.
var (
	ErrInvalidName   = errors.New("invalid artifact path segment")
	ErrPathTraversal = errors.New("path traversal detected")
)

// Store writes named artifacts for a file within a run.
type Store interface {
	Put(ctx context.Context, runID, fileKey, name, content string) error
}

// LocalStore writes artifacts below a root directory.
type LocalStore struct {
	fs  afero.Fs
	dir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at dir on the OS filesystem.
func NewLocalStore(dir string) *LocalStore {
	return NewStoreOnFs(afero.NewOsFs(), dir)
}

// NewStoreOnFs creates a store rooted at dir on fs.
func NewStoreOnFs(fs afero.Fs, dir string) *LocalStore {
	return &LocalStore{fs: fs, dir: dir}
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Path returns where Put writes the named artifact.
func (s *LocalStore) Path(runID, fileKey, name string) string {
	return filepath.Join(s.dir, runID, fileKey, name)
}

// Put writes content to {dir}/{runID}/{fileKey}/{name}, creating directories
// as needed.
func (s *LocalStore) Put(ctx context.Context, runID, fileKey, name, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, seg := range []string{runID, fileKey, name} {
		if err := ValidateSegment(seg); err != nil {
			return fmt.Errorf("%w: %q", err, seg)
		}
	}

	dir := filepath.Join(s.dir, runID, fileKey)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", name, err)
	}
	return nil
}

// ValidateSegment checks that s is a single safe path element.
func ValidateSegment(s string) error {
	if s == "" {
		return ErrInvalidName
	}
	if len(s) > 255 {
		return fmt.Errorf("%w: too long (max 255)", ErrInvalidName)
	}
	if s == "." || s == ".." {
		return ErrPathTraversal
	}
	if strings.ContainsAny(s, "/\\\x00") {
		return ErrPathTraversal
	}
	return nil
}

// FileKey turns a repository path into a directory name by replacing path
// separators and dots with underscores.
func FileKey(filePath string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ".", "_").Replace(filePath)
}

// CodeNames returns the old and new code artifact names for a source path,
// keeping its extension so the files open with the right syntax.
func CodeNames(source string) (oldName, newName string) {
	ext := path.Ext(filepath.ToSlash(source))
	if ext == "" || ext == "." {
		ext = ".txt"
	}
	return "old_code" + ext, "new_code" + ext
}
