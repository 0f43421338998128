package contract

import "time"

// Document: 源文档（docs 根目录下的一个 Markdown 文件）。
// 约束：
// - Path 为规范化绝对路径，作为去重身份；
// - Rel 为相对 docs 根的正斜杠路径，用于推导各语言的目标路径；
// - 枚举后不可变；正文在作业执行时经 FileSystem 读取。
type Document struct {
	Path string
	Rel  string
}

// Language: 目标语言配置（一次运行内固定）。
type Language struct {
	Code string `json:"code" yaml:"code" toml:"code"`
	Name string `json:"name" yaml:"name" toml:"name"`
	Dir  string `json:"dir" yaml:"dir" toml:"dir"`
}

// Decision: 规划结果。
type Decision int

const (
	Translate Decision = iota
	SkipProtected
	SkipExisting
)

func (d Decision) String() string {
	switch d {
	case Translate:
		return "translate"
	case SkipProtected:
		return "skip_protected"
	case SkipExisting:
		return "skip_existing"
	default:
		return "unknown"
	}
}

// Job: (Document, Language) 工作单元。
// Target 为 Doc.Rel 与 Lang.Dir 的纯函数；Seq 为枚举序（0..n-1），用于日志与顺序断言。
type Job struct {
	Seq      int
	Doc      Document
	Lang     Language
	Target   string
	Decision Decision
}

// Status: 作业终态。
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome: 单个作业的终态。
type Outcome struct {
	Job      Job
	Status   Status
	Attempts int
	Err      error
	Duration time.Duration
}

// OverrideSet: 受保护（人工修改过）的目标路径集合，元素为规范化绝对路径。
// 构造后只读，可被多个 goroutine 并发查询。
type OverrideSet map[string]struct{}

// Has 判断目标路径是否受保护。
func (s OverrideSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}
