package contract

import "context"

// Changes: 版本控制查询结果。
// Available=false 表示查询不可用（无上一版本、非仓库、缺少 git 等），此时 Paths 为空，
// Reason 给出简短原因。不可用是预期内的结果，不以 error 表达。
type Changes struct {
	Available bool
	Reason    string
	// Paths: 自 since 以来变更的文件（绝对路径）。
	Paths []string
}

// ChangeLister: 列出自某一版本以来变更的路径。
type ChangeLister interface {
	ChangedPaths(ctx context.Context, since string) Changes
}
