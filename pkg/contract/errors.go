package contract

import "errors"

// 枚举阶段：逐路径拒绝原因（不中断批次）。
var (
	// ErrOutsideRoot: 候选路径不在 docs 根目录内。
	ErrOutsideRoot = errors.New("outside docs root")
	// ErrIsTranslation: 候选路径已位于某个目标语言目录下（译文而非源文）。
	ErrIsTranslation = errors.New("already a translation")
	// ErrNotExist: 候选路径不存在。
	ErrNotExist = errors.New("not exist")
	// ErrNotDocument: 扩展名不是文档扩展名。
	ErrNotDocument = errors.New("not a document")
)

// 执行阶段。
var (
	// ErrRetriesExhausted: 重试耗尽后的终态失败（包裹最后一次错误）。
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrNotDispatched: 运行被中止，作业未被派发。
	ErrNotDispatched = errors.New("not dispatched")
	// ErrPathInvalid: 目标路径映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足。
	ErrBudgetExceeded = errors.New("budget exceeded")
)
