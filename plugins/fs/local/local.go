// Package local 实现基于本地文件系统的 contract.FileSystem：存在性查询、读取与原子整文件写入。
package local

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"doctrans/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Root: 写入根目录（必需）。所有写入目标必须位于其下。
	Root string `json:"root"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。默认 true。
	Atomic *bool `json:"atomic,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 读写缓冲区大小；<=0 使用默认 64KiB。
	BufSize int `json:"buf_size,omitempty"`
	// ExcludeDirNames: Walk 时跳过的目录基名（大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names,omitempty"`
}

type FS struct {
	root       string
	atomic     bool
	permF      os.FileMode
	permD      os.FileMode
	bufSize    int
	excludeDir map[string]struct{}
}

// New 创建本地文件系统实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.Root) == "" {
		return nil, xerrors.Errorf("local fs: %w: empty root", contract.ErrInvalidInput)
	}
	root, err := contract.CanonicalPath(opts.Root)
	if err != nil {
		return nil, xerrors.Errorf("local fs root: %w", err)
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	ex := make(map[string]struct{}, len(opts.ExcludeDirNames))
	for _, name := range opts.ExcludeDirNames {
		if name != "" {
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	return &FS{root: root, atomic: atomic, permF: pf, permD: pd, bufSize: bsz, excludeDir: ex}, nil
}

var _ contract.FileSystem = (*FS)(nil)

// Root 返回规范化后的根目录。
func (w *FS) Root() string { return w.root }

// Exists 判断路径是否存在（任意类型）。
func (w *FS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read 读取整个文件；缺失时包裹 contract.ErrNotExist。
func (w *FS) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("%s: %w", path, contract.ErrNotExist)
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(readerWithCtx(ctx, bufio.NewReaderSize(f, w.bufSize)))
}

// Write 将 r 的全部字节整文件写入 path（自动创建父目录）。
// path 必须位于 Root 之下，否则返回 ErrPathInvalid。
func (w *FS) Write(ctx context.Context, path string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath: 规范化 + 越界校验。
func (w *FS) mapPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", contract.ErrPathInvalid
	}
	dest, err := contract.CanonicalPath(path)
	if err != nil {
		return "", xerrors.Errorf("%s: %w", path, contract.ErrPathInvalid)
	}
	if _, ok := contract.RelUnder(w.root, dest); !ok {
		return "", xerrors.Errorf("%s: %w", path, contract.ErrPathInvalid)
	}
	return dest, nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
