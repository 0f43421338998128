// Package git 通过 git 命令行实现 contract.ChangeLister。
package git

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"doctrans/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Dir: 执行 git 的工作目录；为空时使用进程当前目录。
	Dir string `json:"dir,omitempty"`
	// Binary: git 可执行文件；默认 "git"。
	Binary string `json:"binary,omitempty"`
}

type Lister struct {
	dir string
	bin string
}

func New(opts *Options) *Lister {
	l := &Lister{bin: "git"}
	if opts != nil {
		l.dir = opts.Dir
		if opts.Binary != "" {
			l.bin = opts.Binary
		}
	}
	return l
}

var _ contract.ChangeLister = (*Lister)(nil)

// ChangedPaths 返回 since..HEAD 之间变更的文件。
// git 输出的路径相对仓库顶层目录，这里统一解析为规范化绝对路径。
// 任一步失败均返回 Available=false，不视为错误。
func (l *Lister) ChangedPaths(ctx context.Context, since string) contract.Changes {
	if strings.TrimSpace(since) == "" {
		return contract.Changes{Reason: "empty revision"}
	}
	top, err := l.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return contract.Changes{Reason: "not a git repository: " + err.Error()}
	}
	top = strings.TrimSpace(top)
	if top == "" {
		return contract.Changes{Reason: "empty toplevel"}
	}
	if c, err := contract.CanonicalPath(filepath.FromSlash(top)); err == nil {
		top = c
	}
	// -z: 以 NUL 分隔且不转义非 ASCII 路径
	out, err := l.run(ctx, "-c", "core.quotePath=false", "diff", "--name-only", "-z", since, "HEAD", "--")
	if err != nil {
		return contract.Changes{Reason: "git diff " + since + ": " + err.Error()}
	}
	var paths []string
	for _, name := range strings.Split(out, "\x00") {
		if name == "" {
			continue
		}
		p := filepath.Join(top, filepath.FromSlash(name))
		if c, err := contract.CanonicalPath(p); err == nil {
			p = c
		}
		paths = append(paths, p)
	}
	return contract.Changes{Available: true, Paths: paths}
}

func (l *Lister) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, l.bin, args...)
	cmd.Dir = l.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", &runError{err: err, stderr: firstLine(msg)}
		}
		return "", err
	}
	return stdout.String(), nil
}

type runError struct {
	err    error
	stderr string
}

func (e *runError) Error() string { return e.err.Error() + ": " + e.stderr }
func (e *runError) Unwrap() error { return e.err }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
