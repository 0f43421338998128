package override

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/internal/diag"
	"doctrans/pkg/contract"
)

type stubVCS struct {
	ch    contract.Changes
	since string
}

func (s *stubVCS) ChangedPaths(_ context.Context, since string) contract.Changes {
	s.since = since
	return s.ch
}

var langs = []contract.Language{{Code: "en", Dir: "en"}, {Code: "ja", Dir: "ja"}}

func root(t *testing.T) string {
	t.Helper()
	r, err := contract.CanonicalPath(t.TempDir())
	require.NoError(t, err)
	return filepath.Join(r, "docs")
}

func TestDetectKeepsTranslationPaths(t *testing.T) {
	r := root(t)
	vcs := &stubVCS{ch: contract.Changes{Available: true, Paths: []string{
		filepath.Join(r, "en", "a.md"),
		filepath.Join(r, "ja", "guide", "b.md"),
		filepath.Join(r, "a.md"),
		filepath.Join(r, "english", "c.md"),
		filepath.Join(filepath.Dir(r), "README.md"),
	}}}
	set := Detect(context.Background(), vcs, "HEAD~1", r, langs, nil)
	assert.Equal(t, "HEAD~1", vcs.since)
	assert.Len(t, set, 2)
	assert.True(t, set.Has(filepath.Join(r, "en", "a.md")))
	assert.True(t, set.Has(filepath.Join(r, "ja", "guide", "b.md")))
	assert.False(t, set.Has(filepath.Join(r, "english", "c.md")), "前缀相同但不是语言目录")
}

func TestDetectFailOpen(t *testing.T) {
	var buf bytes.Buffer
	log := diag.NewLoggerTo(&buf, "c", "info")
	vcs := &stubVCS{ch: contract.Changes{Available: false, Reason: "no previous revision"}}
	set := Detect(context.Background(), vcs, "HEAD~1", root(t), langs, log)
	assert.Empty(t, set)
	assert.Contains(t, buf.String(), `"code":"vcs_unavailable"`)
	assert.Contains(t, buf.String(), "no previous revision")

	assert.Empty(t, Detect(context.Background(), nil, "HEAD~1", root(t), langs, nil))
}
