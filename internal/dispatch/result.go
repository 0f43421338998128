package dispatch

import (
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"doctrans/pkg/contract"
)

// RunStatus: 一次运行的汇总状态。
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailure RunStatus = "failure"
)

// Failure: 单个失败作业的记录。
type Failure struct {
	Source   string
	Lang     string
	Target   string
	Attempts int
	Err      error
}

// RunResult: 运行结果聚合。
// 仅由收集协程写入；Run 返回后只读。
type RunResult struct {
	Translated       int
	SkippedProtected int
	SkippedExisting  int
	Failed           int

	Failures []Failure
	// Completed: 已执行（成功或失败）的作业，按完成先后排列。
	Completed []contract.Job
	// Outcomes: 与 Completed 一一对应。
	Outcomes []contract.Outcome
}

// Skipped 返回跳过总数。
func (r *RunResult) Skipped() int { return r.SkippedProtected + r.SkippedExisting }

// Status: 无失败为 success；有失败且无成功为 failure；否则 partial。
func (r *RunResult) Status() RunStatus {
	switch {
	case r.Failed == 0:
		return RunSuccess
	case r.Translated == 0:
		return RunFailure
	default:
		return RunPartial
	}
}

// Err 合并所有失败作业的错误；无失败时为 nil。
func (r *RunResult) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, xerrors.Errorf("%s -> %s: %w", f.Source, f.Lang, f.Err))
	}
	return err
}

func (r *RunResult) record(o contract.Outcome) {
	switch o.Status {
	case contract.StatusSkipped:
		if o.Job.Decision == contract.SkipProtected {
			r.SkippedProtected++
		} else {
			r.SkippedExisting++
		}
		return
	case contract.StatusSucceeded:
		r.Translated++
	default:
		r.Failed++
		r.Failures = append(r.Failures, Failure{
			Source:   o.Job.Doc.Rel,
			Lang:     o.Job.Lang.Code,
			Target:   o.Job.Target,
			Attempts: o.Attempts,
			Err:      o.Err,
		})
	}
	r.Completed = append(r.Completed, o.Job)
	r.Outcomes = append(r.Outcomes, o)
}
