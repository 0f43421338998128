// Package missing 查找缺少译文的源文档，并输出列表文件。
package missing

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"doctrans/internal/diag"
	"doctrans/pkg/contract"
	"doctrans/plugins/fs/local"
)

// DefaultOutput 为列表文件的默认位置。
const DefaultOutput = "/tmp/missing_files.txt"

// Walker 以稳定顺序遍历文档根下的文件（绝对路径）。
type Walker interface {
	Walk(ctx context.Context, fn func(path string) error) error
}

// Entry: 一个缺少至少一种译文的源文档。
type Entry struct {
	Doc contract.Document
	// Missing: 缺失译文的语言代码（按配置顺序）。
	Missing []string
}

type Report struct {
	Scanned int
	Entries []Entry
	// PerLang: 各语言缺失数量。
	PerLang map[string]int
}

// Paths 返回缺失项的源文档绝对路径（遍历顺序）。
func (r *Report) Paths() []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.Doc.Path)
	}
	return out
}

// Scan 遍历 root，跳过一级语言目录与非 ext 扩展名文件，逐语言检查译文是否存在。
func Scan(ctx context.Context, w Walker, root string, langs []contract.Language, ext string, fs contract.FileSystem, log *diag.Logger) (*Report, error) {
	if ext == "" {
		ext = ".md"
	}
	croot, err := contract.CanonicalPath(root)
	if err != nil {
		return nil, xerrors.Errorf("docs root: %w", err)
	}
	t := log.Start("missing", "scan")
	rep := &Report{PerLang: make(map[string]int, len(langs))}
	for _, l := range langs {
		rep.PerLang[l.Code] = 0
	}
	err = w.Walk(ctx, func(p string) error {
		rel, ok := contract.RelUnder(croot, p)
		if !ok {
			return nil
		}
		for _, l := range langs {
			if contract.UnderDir(rel, l.Dir) {
				return nil
			}
		}
		if !strings.EqualFold(filepath.Ext(p), ext) {
			return nil
		}
		rep.Scanned++
		var miss []string
		for _, l := range langs {
			if !fs.Exists(contract.TargetPath(croot, l, rel)) {
				miss = append(miss, l.Code)
				rep.PerLang[l.Code]++
			}
		}
		if len(miss) > 0 {
			rep.Entries = append(rep.Entries, Entry{Doc: contract.Document{Path: p, Rel: rel}, Missing: miss})
		}
		return nil
	})
	if err != nil {
		log.Error("missing", string(diag.Classify(err)), err.Error(), nil)
		return nil, xerrors.Errorf("walk %s: %w", croot, err)
	}
	for code, n := range rep.PerLang {
		log.Info("missing", "per_lang", map[string]string{"lang": code, "missing": strconv.Itoa(n)})
	}
	t.Finish("scan done", int64(len(rep.Entries)))
	return rep, nil
}

// Save 将缺失项路径逐行写入 output。无缺失项时不写文件，返回 false。
func Save(ctx context.Context, rep *Report, output string) (bool, error) {
	if rep == nil || len(rep.Entries) == 0 {
		return false, nil
	}
	if output == "" {
		output = DefaultOutput
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return false, err
	}
	fs, err := local.New(&local.Options{Root: filepath.Dir(abs)})
	if err != nil {
		return false, err
	}
	var b strings.Builder
	for _, p := range rep.Paths() {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	if err := fs.Write(ctx, abs, strings.NewReader(b.String())); err != nil {
		return false, xerrors.Errorf("write %s: %w", abs, err)
	}
	return true, nil
}
