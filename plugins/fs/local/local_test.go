package local

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/pkg/contract"
)

func newFS(t *testing.T, opts Options) (*FS, string) {
	t.Helper()
	root := t.TempDir()
	opts.Root = root
	fs, err := New(&opts)
	require.NoError(t, err)
	return fs, fs.Root()
}

func noTmpLeft(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "临时文件未清理: %s", e.Name())
	}
}

func TestWriteAtomicCreatesDirs(t *testing.T) {
	fs, root := newFS(t, Options{})
	dest := filepath.Join(root, "en", "guide", "a.md")
	require.NoError(t, fs.Write(context.Background(), dest, bytes.NewBufferString("# Title")))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(b))
	noTmpLeft(t, filepath.Dir(dest))

	// 已存在时整文件替换
	require.NoError(t, fs.Write(context.Background(), dest, bytes.NewBufferString("new")))
	b, _ = os.ReadFile(dest)
	assert.Equal(t, "new", string(b))
	assert.True(t, fs.Exists(dest))
}

func TestWriteOverwriteMode(t *testing.T) {
	off := false
	fs, root := newFS(t, Options{Atomic: &off, PermFile: 0o600})
	dest := filepath.Join(root, "ja", "a.md")
	require.NoError(t, fs.Write(context.Background(), dest, strings.NewReader("long content")))
	require.NoError(t, fs.Write(context.Background(), dest, strings.NewReader("short")))
	b, _ := os.ReadFile(dest)
	assert.Equal(t, "short", string(b), "应截断旧内容")
}

func TestWriteRejectsOutsideRoot(t *testing.T) {
	fs, root := newFS(t, Options{})
	for _, p := range []string{"", root, filepath.Join(root, "..", "escape.md"), filepath.Join(filepath.Dir(root), "x.md")} {
		err := fs.Write(context.Background(), p, strings.NewReader("x"))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, "path=%q", p)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestWriteAtomicCleansUpOnError(t *testing.T) {
	fs, root := newFS(t, Options{})
	dest := filepath.Join(root, "en", "a.md")
	require.Error(t, fs.Write(context.Background(), dest, errReader{}))
	assert.False(t, fs.Exists(dest), "失败时不应留下目标文件")
	noTmpLeft(t, filepath.Dir(dest))
}

func TestWriteCanceled(t *testing.T) {
	fs, root := newFS(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fs.Write(ctx, filepath.Join(root, "a.md"), strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRead(t *testing.T) {
	fs, root := newFS(t, Options{BufSize: 4})
	p := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(p, []byte("# 标题\n正文"), 0o644))
	b, err := fs.Read(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "# 标题\n正文", string(b))

	_, err = fs.Read(context.Background(), filepath.Join(root, "missing.md"))
	assert.ErrorIs(t, err, contract.ErrNotExist)
	assert.False(t, fs.Exists(filepath.Join(root, "missing.md")))
}

func TestWalkOrderAndExcludes(t *testing.T) {
	fs, root := newFS(t, Options{ExcludeDirNames: []string{"Node_Modules"}})
	for _, rel := range []string{"b.md", "a.md", "sub/c.md", ".hidden/x.md", ".dot.md", "node_modules/y.md", "zz/d.txt"} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	var got []string
	require.NoError(t, fs.Walk(context.Background(), func(p string) error {
		rel, _ := filepath.Rel(root, p)
		got = append(got, filepath.ToSlash(rel))
		return nil
	}))
	assert.Equal(t, []string{"sub/c.md", "zz/d.txt", "a.md", "b.md"}, got)

	stop := errors.New("stop")
	err := fs.Walk(context.Background(), func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(&Options{Root: "  "})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
