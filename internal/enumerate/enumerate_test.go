package enumerate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/pkg/contract"
)

type osExists struct{}

func (osExists) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (osExists) Read(context.Context, string) ([]byte, error) { return nil, nil }

func (osExists) Write(context.Context, string, io.Reader) error { return nil }

func touch(t *testing.T, p string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("# x"), 0o644))
}

func setup(t *testing.T) (string, Options) {
	t.Helper()
	base, err := contract.CanonicalPath(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(base, "doc")
	touch(t, filepath.Join(root, "a.md"))
	touch(t, filepath.Join(root, "en", "a.md"))
	touch(t, filepath.Join(root, "guide", "b.md"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(base, "outside.md"))
	return base, Options{Root: root, LangDirs: []string{"en", "ja"}}
}

func TestDocumentsExcludesTranslations(t *testing.T) {
	base, opts := setup(t)
	testChdir(t, base)
	docs, rejected := Documents([]string{"doc/a.md", "doc/en/a.md"}, opts, osExists{})
	require.Len(t, docs, 1, "仅 doc/a.md 应成为文档")
	assert.Equal(t, "a.md", docs[0].Rel)
	assert.Equal(t, filepath.Join(opts.Root, "a.md"), docs[0].Path)
	require.Len(t, rejected, 1)
	assert.Equal(t, "doc/en/a.md", rejected[0].Path)
	assert.ErrorIs(t, rejected[0].Err, contract.ErrIsTranslation)
}

func TestDocumentsRejectionsAndOrder(t *testing.T) {
	base, opts := setup(t)
	testChdir(t, base)
	in := []string{
		"doc/guide/b.md",
		"doc/missing.md",
		"doc/notes.txt",
		"outside.md",
		"./doc/a.md",
		filepath.Join(opts.Root, "guide", "..", "a.md"), // 与上一项同一身份
		"doc/guide/b.md",
	}
	docs, rejected := Documents(in, opts, osExists{})
	require.Len(t, docs, 2)
	assert.Equal(t, "guide/b.md", docs[0].Rel, "保持输入顺序")
	assert.Equal(t, "a.md", docs[1].Rel)

	got := map[string]error{}
	for _, r := range rejected {
		got[r.Path] = r.Err
	}
	assert.ErrorIs(t, got["doc/missing.md"], contract.ErrNotExist)
	assert.ErrorIs(t, got["doc/notes.txt"], contract.ErrNotDocument)
	assert.ErrorIs(t, got["outside.md"], contract.ErrOutsideRoot)
	assert.Len(t, rejected, 3)
}

func TestDocumentsCustomExt(t *testing.T) {
	base, opts := setup(t)
	testChdir(t, base)
	opts.Ext = ".TXT"
	docs, _ := Documents([]string{"doc/notes.txt", "doc/a.md"}, opts, osExists{})
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Rel)
}

func TestDocumentsRootItselfRejected(t *testing.T) {
	_, opts := setup(t)
	docs, rejected := Documents([]string{opts.Root}, opts, osExists{})
	assert.Empty(t, docs)
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0].Err, contract.ErrOutsideRoot)
}
