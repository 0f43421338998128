package contract

import (
	"context"
	"io"
)

// FileSystem: 文件系统能力。
// 约束：
//  1. Write 为整文件替换（非增量），必要时自动创建父目录；
//  2. 同一路径单写者（同一次运行内目标路径唯一）；
//  3. 错误直接上抛（不做重试/回退）。
type FileSystem interface {
	Exists(path string) bool
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, r io.Reader) error
}
