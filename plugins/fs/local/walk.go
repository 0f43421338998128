package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Walk 以稳定顺序（字典序，先子目录后文件）遍历 Root 下的常规文件，对每个文件调用 fn(绝对路径)。
// 跳过以 "." 开头的条目与 ExcludeDirNames 中的目录；不跟随目录符号链接。
func (w *FS) Walk(ctx context.Context, fn func(path string) error) error {
	return w.walkDir(ctx, w.root, fn)
}

func (w *FS) walkDir(ctx context.Context, dir string, fn func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, skip := w.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := w.walkDir(ctx, filepath.Join(dir, e.Name()), fn); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		// 符号链接仅在目标为常规文件时保留
		t, err := os.Stat(p)
		if err != nil || !t.Mode().IsRegular() {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}
