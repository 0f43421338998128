// Package dispatch 以固定数量的 worker 并发执行翻译作业，并由单一收集协程汇总结果。
package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"doctrans/pkg/contract"
)

// Executor 执行单个 TRANSLATE 作业并返回终态；不应 panic，失败以 Outcome.Err 表达。
type Executor interface {
	Execute(ctx context.Context, job contract.Job) contract.Outcome
}

// ExecutorFunc 适配普通函数。
type ExecutorFunc func(ctx context.Context, job contract.Job) contract.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, job contract.Job) contract.Outcome {
	return f(ctx, job)
}

// Settings: 并发参数。
type Settings struct {
	// Concurrency: worker 数 N（<1 视为 1）。
	Concurrency int
}

// Run 执行作业列表：
//   - 非 TRANSLATE 作业直接记为跳过；
//   - TRANSLATE 作业按输入顺序派发给 N 个 worker，单个失败不影响其它作业；
//   - ctx 取消后停止派发，已在执行的作业在脱离取消的上下文中跑完，未派发的记为 ErrNotDispatched。
//
// 每个作业恰好被记录一次。
func Run(ctx context.Context, jobs []contract.Job, st Settings, exec Executor) *RunResult {
	n := st.Concurrency
	if n < 1 {
		n = 1
	}
	res := &RunResult{}
	var todo []contract.Job
	for _, j := range jobs {
		if j.Decision == contract.Translate {
			todo = append(todo, j)
			continue
		}
		res.record(contract.Outcome{Job: j, Status: contract.StatusSkipped})
	}
	if len(todo) == 0 {
		return res
	}
	if n > len(todo) {
		n = len(todo)
	}

	queue := make(chan contract.Job)
	results := make(chan contract.Outcome, n)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range results {
			res.record(o)
		}
	}()

	// 在途作业不随运行级取消而中断
	jobCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		defer close(queue)
		for i, j := range todo {
			if ctx.Err() == nil {
				select {
				case queue <- j:
					continue
				case <-ctx.Done():
				}
			}
			for _, rest := range todo[i:] {
				results <- contract.Outcome{Job: rest, Status: contract.StatusFailed, Err: contract.ErrNotDispatched}
			}
			return nil
		}
		return nil
	})
	for w := 0; w < n; w++ {
		g.Go(func() error {
			for j := range queue {
				results <- normalize(j, exec.Execute(jobCtx, j))
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-collected
	return res
}

func normalize(j contract.Job, o contract.Outcome) contract.Outcome {
	o.Job = j
	if o.Status == "" || o.Status == contract.StatusSkipped {
		if o.Err != nil {
			o.Status = contract.StatusFailed
		} else {
			o.Status = contract.StatusSucceeded
		}
	}
	return o
}
