package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/pkg/contract"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
		"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com",
		"GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func writeFile(t *testing.T, p, s string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(s), 0o644))
}

func TestChangedPathsAbsoluteFromSubdir(t *testing.T) {
	requireGit(t)
	repo := t.TempDir()
	gitCmd(t, repo, "init", "-q")
	writeFile(t, filepath.Join(repo, "doc", "a.md"), "v1")
	writeFile(t, filepath.Join(repo, "doc", "b.md"), "v1")
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "-q", "-m", "one")
	writeFile(t, filepath.Join(repo, "doc", "a.md"), "v2")
	gitCmd(t, repo, "commit", "-q", "-am", "two")

	// 在子目录中运行，路径仍应相对仓库顶层解析
	l := New(&Options{Dir: filepath.Join(repo, "doc")})
	got := l.ChangedPaths(context.Background(), "HEAD~1")
	require.True(t, got.Available, got.Reason)

	want, err := contract.CanonicalPath(filepath.Join(repo, "doc", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, []string{want}, got.Paths)
}

// 非 ASCII 与含空格的路径需原样返回，不受 core.quotePath 影响
func TestChangedPathsNonASCII(t *testing.T) {
	requireGit(t)
	repo := t.TempDir()
	gitCmd(t, repo, "init", "-q")
	gitCmd(t, repo, "config", "core.quotePath", "true")
	writeFile(t, filepath.Join(repo, "docs", "index.md"), "v1")
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "-q", "-m", "one")
	writeFile(t, filepath.Join(repo, "docs", "en", "指南.md"), "edited")
	writeFile(t, filepath.Join(repo, "docs", "en", "使用 说明.md"), "edited")
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "-q", "-m", "two")

	got := New(&Options{Dir: repo}).ChangedPaths(context.Background(), "HEAD~1")
	require.True(t, got.Available, got.Reason)

	var want []string
	for _, name := range []string{"使用 说明.md", "指南.md"} {
		p, err := contract.CanonicalPath(filepath.Join(repo, "docs", "en", name))
		require.NoError(t, err)
		want = append(want, p)
	}
	assert.ElementsMatch(t, want, got.Paths)
}

func TestChangedPathsNoPreviousRevision(t *testing.T) {
	requireGit(t)
	repo := t.TempDir()
	gitCmd(t, repo, "init", "-q")
	writeFile(t, filepath.Join(repo, "a.md"), "v1")
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "-q", "-m", "one")

	got := New(&Options{Dir: repo}).ChangedPaths(context.Background(), "HEAD~1")
	assert.False(t, got.Available)
	assert.Empty(t, got.Paths)
	assert.NotEmpty(t, got.Reason)
}

func TestChangedPathsNotARepo(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	got := New(&Options{Dir: dir}).ChangedPaths(context.Background(), "HEAD~1")
	assert.False(t, got.Available)
	assert.Contains(t, got.Reason, "not a git repository")
}

func TestChangedPathsMissingBinary(t *testing.T) {
	got := New(&Options{Binary: "git-does-not-exist-xyz"}).ChangedPaths(context.Background(), "HEAD~1")
	assert.False(t, got.Available)

	got = New(nil).ChangedPaths(context.Background(), " ")
	assert.False(t, got.Available)
	assert.Equal(t, "empty revision", got.Reason)
}
