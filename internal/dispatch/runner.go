package dispatch

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"doctrans/internal/diag"
	"doctrans/internal/prompt"
	"doctrans/internal/rate"
	"doctrans/internal/retry"
	"doctrans/pkg/contract"
)

// Runner 是默认 Executor：读取原文 → 在重试执行器下翻译 → 原子写入目标。
// 读失败与写失败均为终态，不重试。
type Runner struct {
	FS         contract.FileSystem
	Translator contract.Translator
	Retry      retry.Executor

	// 可选：限流闸门与分组键；Prompts 用于估算申请的 token。
	Gate     rate.Gate
	GateKey  rate.LimitKey
	Prompts  contract.PromptBuilder
	Estimate contract.TokenEstimator

	Clock  clock.Clock
	Logger *diag.Logger
}

var _ Executor = (*Runner)(nil)

// Execute 实现 Executor。
func (r *Runner) Execute(ctx context.Context, job contract.Job) contract.Outcome {
	clk := r.Clock
	if clk == nil {
		clk = clock.New()
	}
	t0 := clk.Now()
	src, lang := job.Doc.Rel, job.Lang.Code
	term := diag.GetTerminal()
	term.JobStart(src, lang)
	timer := r.Logger.StartWithKV("dispatch", "job", src, lang, map[string]string{"seq": strconv.Itoa(job.Seq), "target": job.Target})

	fail := func(stage string, attempts int, err error) contract.Outcome {
		dur := clk.Since(t0)
		code := string(diag.Classify(err))
		r.Logger.ErrorWithKV("dispatch", code, stage+" failed: "+err.Error(), &t0, src, lang, map[string]string{"attempts": strconv.Itoa(attempts)})
		diag.IncOp("dispatch", stage, "error")
		diag.IncError("dispatch", code)
		term.JobFinish(src, lang, attempts, dur, err)
		return contract.Outcome{Job: job, Status: contract.StatusFailed, Attempts: attempts, Err: err, Duration: dur}
	}

	body, err := r.FS.Read(ctx, job.Doc.Path)
	if err != nil {
		return fail("read", 0, xerrors.Errorf("read %s: %w", job.Doc.Path, err))
	}
	content := string(body)

	ex := r.Retry
	if r.Gate != nil {
		ask := rate.Ask{Key: r.GateKey, Requests: 1, Tokens: r.tokens(ctx, content, job.Lang)}
		ex.Admit = func(ctx context.Context) error { return r.Gate.Wait(ctx, ask) }
	}
	ex.OnRetry = func(attempt int, d time.Duration, err error) {
		code := string(diag.Classify(err))
		r.Logger.WarnWith("retry", code, "attempt failed: "+err.Error(), src, lang,
			map[string]string{"attempt": strconv.Itoa(attempt), "delay_ms": strconv.FormatInt(d.Milliseconds(), 10)})
		diag.IncError("retry", code)
		term.JobRetry(src, lang, attempt, d)
	}

	var out string
	attempts, err := ex.Do(ctx, func(actx context.Context) error {
		s, err := r.Translator.Translate(actx, content, job.Lang)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return fail("translate", attempts, err)
	}

	if err := r.FS.Write(ctx, job.Target, strings.NewReader(out)); err != nil {
		return fail("write", attempts, xerrors.Errorf("write %s: %w", job.Target, err))
	}

	dur := clk.Since(t0)
	timer.Finish("job done", int64(len(out)))
	diag.IncOp("dispatch", "job", "success")
	term.JobFinish(src, lang, attempts, dur, nil)
	return contract.Outcome{Job: job, Status: contract.StatusSucceeded, Attempts: attempts, Duration: dur}
}

func (r *Runner) tokens(ctx context.Context, content string, lang contract.Language) int {
	est := r.Estimate
	if est == nil {
		est = prompt.MakeEstimator(0)
	}
	var p contract.Prompt = contract.TextPrompt(content)
	if r.Prompts != nil {
		if built, err := r.Prompts.Build(ctx, content, lang); err == nil {
			p = built
		}
	}
	return prompt.RequestTokens(p, content, est)
}
