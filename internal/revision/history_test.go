package revision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo, wt: wt}
}

func (r *testRepo) write(name, content string) {
	r.t.Helper()
	full := filepath.Join(r.dir, filepath.FromSlash(name))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))
	_, err := r.wt.Add(name)
	require.NoError(r.t, err)
}

func (r *testRepo) remove(name string) {
	r.t.Helper()
	_, err := r.wt.Remove(name)
	require.NoError(r.t, err)
}

func (r *testRepo) commit(msg string) string {
	r.t.Helper()
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
	return hash.String()
}

// seed builds a two-commit history:
//
//	c1: src/api/routes.py, src/models.py, README.md, tools/build.py
//	c2: modifies routes.py, adds src/api/users.py, deletes src/models.py,
//	    modifies README.md and tools/build.py
func seed(t *testing.T) (*testRepo, string, string) {
	r := newTestRepo(t)
	r.write("src/api/routes.py", "app = Flask(__name__)\n")
	r.write("src/models.py", "class User: pass\n")
	r.write("README.md", "docs\n")
	r.write("tools/build.py", "print('build')\n")
	c1 := r.commit("initial")

	r.write("src/api/routes.py", "app = Flask(__name__)\n@app.route('/v1/users')\ndef users(): pass\n")
	r.write("src/api/users.py", "def get_user(): pass\n")
	r.remove("src/models.py")
	r.write("README.md", "more docs\n")
	r.write("tools/build.py", "print('build v2')\n")
	c2 := r.commit("add users endpoint")
	return r, c1, c2
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrRevisionAccess)
}

func TestOpen_DetectsParent(t *testing.T) {
	r, _, _ := seed(t)
	h, err := Open(filepath.Join(r.dir, "src", "api"), nil)
	require.NoError(t, err)
	assert.Equal(t, r.dir, h.Root())
}

func TestReadFileAt(t *testing.T) {
	ctx := context.Background()
	r, c1, c2 := seed(t)
	h, err := Open(r.dir, []string{".py"})
	require.NoError(t, err)

	content, ok, err := h.ReadFileAt(ctx, "src/api/routes.py", c1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "app = Flask(__name__)\n", content)

	content, ok, err = h.ReadFileAt(ctx, "src/api/routes.py", "HEAD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, content, "/v1/users")

	_, ok, err = h.ReadFileAt(ctx, "src/api/users.py", c1)
	require.NoError(t, err)
	assert.False(t, ok, "file added in c2 is absent at c1")

	_, ok, err = h.ReadFileAt(ctx, "src/models.py", c2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = h.ReadFileAt(ctx, "src/api/routes.py", "no-such-branch")
	assert.ErrorIs(t, err, ErrRevisionAccess)
}

func TestChangedFiles(t *testing.T) {
	ctx := context.Background()
	r, c1, c2 := seed(t)

	tests := []struct {
		name string
		exts []string
		dir  string
		want []string
	}{
		{"root python files", []string{".py"}, ".", []string{"src/api/routes.py", "src/api/users.py", "tools/build.py"}},
		{"empty dir is root", []string{".py"}, "", []string{"src/api/routes.py", "src/api/users.py", "tools/build.py"}},
		{"subdirectory", []string{".py"}, "src/api", []string{"src/api/routes.py", "src/api/users.py"}},
		{"trailing slash", []string{".py"}, "src/", []string{"src/api/routes.py", "src/api/users.py"}},
		{"prefix is a directory boundary", []string{".py"}, "src/ap", nil},
		{"no extension filter", nil, ".", []string{"README.md", "src/api/routes.py", "src/api/users.py", "tools/build.py"}},
		{"markdown only", []string{".md"}, ".", []string{"README.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Open(r.dir, tt.exts)
			require.NoError(t, err)
			got, err := h.ChangedFiles(ctx, tt.dir, c1, c2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChangedFiles_SameRevision(t *testing.T) {
	r, _, c2 := seed(t)
	h, err := Open(r.dir, []string{".py"})
	require.NoError(t, err)

	got, err := h.ChangedFiles(context.Background(), ".", c2, "HEAD")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChangedFiles_BadRevision(t *testing.T) {
	r, c1, _ := seed(t)
	h, err := Open(r.dir, nil)
	require.NoError(t, err)

	_, err = h.ChangedFiles(context.Background(), ".", c1, "deadbeef")
	assert.ErrorIs(t, err, ErrRevisionAccess)
}

func TestChangedFiles_Exclude(t *testing.T) {
	ctx := context.Background()
	r, c1, c2 := seed(t)

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{"directory pattern", []Option{WithExclude("tools/")}, []string{"src/api/routes.py", "src/api/users.py"}},
		{"glob anywhere", []Option{WithExclude("users.py")}, []string{"src/api/routes.py", "tools/build.py"}},
		{"negation", []Option{WithExclude("*.py", "!routes.py")}, []string{"src/api/routes.py"}},
		{"comments and blanks ignored", []Option{WithExclude("# tools/", "  ")}, []string{"src/api/routes.py", "src/api/users.py", "tools/build.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Open(r.dir, []string{".py"}, tt.opts...)
			require.NoError(t, err)
			got, err := h.ChangedFiles(ctx, ".", c1, c2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChangedFiles_IgnoreFileFromTargetRevision(t *testing.T) {
	ctx := context.Background()
	r, c1, _ := seed(t)
	r.write(DefaultIgnoreFile, "# generated code\ntools/\n")
	c3 := r.commit("ignore tools")

	h, err := Open(r.dir, []string{".py"})
	require.NoError(t, err)
	got, err := h.ChangedFiles(ctx, ".", c1, c3)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/api/routes.py", "src/api/users.py"}, got)

	h, err = Open(r.dir, []string{".py"}, WithIgnoreFile(""))
	require.NoError(t, err)
	got, err = h.ChangedFiles(ctx, ".", c1, c3)
	require.NoError(t, err)
	assert.Contains(t, got, "tools/build.py")
}
