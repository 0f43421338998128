package contract

import (
	"path/filepath"
	"strings"
)

// CanonicalPath 将路径规范化为绝对、清理后的形式。
// 若路径或其某个祖先存在符号链接，则尽量解析（最长存在前缀），以便与 git 输出比较。
func CanonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	// 逐级向上寻找可解析的前缀，未存在部分原样拼回
	rest := ""
	cur := abs
	for {
		if r, err := filepath.EvalSymlinks(cur); err == nil {
			if rest == "" {
				return r, nil
			}
			return filepath.Join(r, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		if rest == "" {
			rest = filepath.Base(cur)
		} else {
			rest = filepath.Join(filepath.Base(cur), rest)
		}
		cur = parent
	}
}

// RelUnder 返回 p 相对 root 的正斜杠路径；p 不在 root 内时 ok=false。
// 两者均应已规范化。
func RelUnder(root, p string) (rel string, ok bool) {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// TargetPath: 目标路径 = root/lang.Dir/rel（纯函数）。
func TargetPath(root string, lang Language, rel string) string {
	return filepath.Join(root, lang.Dir, filepath.FromSlash(rel))
}

// UnderDir 判断 rel（正斜杠、相对 docs 根）是否位于一级目录 dir 之下。
func UnderDir(rel, dir string) bool {
	if dir == "" {
		return false
	}
	return strings.HasPrefix(rel, dir+"/")
}
