// Package enumerate 将候选路径过滤、规范化为有序去重的源文档列表。
package enumerate

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"doctrans/pkg/contract"
)

// Options: 枚举参数。
type Options struct {
	// Root: docs 根目录（规范化绝对路径）。
	Root string
	// LangDirs: 各目标语言的输出子目录（相对 Root）。
	LangDirs []string
	// Ext: 文档扩展名（含点，默认 .md，大小写不敏感）。
	Ext string
}

// Rejection: 被拒绝的候选路径与原因。
type Rejection struct {
	Path string
	Err  error
}

// Documents 逐个检查候选路径并返回接受的文档（保持输入顺序、按规范路径去重）与拒绝列表。
// 检查顺序：越界 → 已是译文 → 扩展名 → 存在性。单个路径的拒绝不影响其它路径。
func Documents(candidates []string, opts Options, fs contract.FileSystem) ([]contract.Document, []Rejection) {
	ext := opts.Ext
	if ext == "" {
		ext = ".md"
	}
	var docs []contract.Document
	var rejected []Rejection
	reject := func(p string, err error) {
		rejected = append(rejected, Rejection{Path: p, Err: xerrors.Errorf("%s: %w", p, err)})
	}
	for _, c := range candidates {
		abs, err := contract.CanonicalPath(c)
		if err != nil {
			reject(c, contract.ErrPathInvalid)
			continue
		}
		rel, ok := contract.RelUnder(opts.Root, abs)
		if !ok {
			reject(c, contract.ErrOutsideRoot)
			continue
		}
		if lo.ContainsBy(opts.LangDirs, func(dir string) bool { return contract.UnderDir(rel, dir) }) {
			reject(c, contract.ErrIsTranslation)
			continue
		}
		if !strings.EqualFold(filepath.Ext(abs), ext) {
			reject(c, contract.ErrNotDocument)
			continue
		}
		if !fs.Exists(abs) {
			reject(c, contract.ErrNotExist)
			continue
		}
		docs = append(docs, contract.Document{Path: abs, Rel: rel})
	}
	return lo.UniqBy(docs, func(d contract.Document) string { return d.Path }), rejected
}
