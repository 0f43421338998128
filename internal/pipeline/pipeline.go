// Package pipeline 组合手工译文检测 → 文档枚举 → 作业规划 → 并发派发，并汇总运行结果。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"doctrans/internal/diag"
	"doctrans/internal/dispatch"
	"doctrans/internal/enumerate"
	"doctrans/internal/missing"
	"doctrans/internal/override"
	"doctrans/internal/plan"
	"doctrans/internal/prompt"
	"doctrans/internal/rate"
	"doctrans/internal/retry"
	"doctrans/pkg/contract"
)

// ErrInfrastructure: 无法枚举任何作业（docs 根不可用或全部候选因错误被拒）。
// 与部分失败区分，对应不同的退出码。
var ErrInfrastructure = errors.New("infrastructure failure")

// - 单点并发：仅 dispatch 管理并发；各组件均为同步实现。
// - OverrideSet 在派发前一次性计算，运行期只读。
// - 单作业失败不影响其它作业；失败明细汇总到 RunResult。

// Components 聚合运行所需的外部能力。
type Components struct {
	FS         contract.FileSystem
	VCS        contract.ChangeLister
	Translator contract.Translator
	// Prompts 仅用于估算限流申请的 token；可为空。
	Prompts contract.PromptBuilder
	// 限流闸门（可选）：若非空，则在每次调用前 Gate.Wait
	Gate    rate.Gate
	GateKey rate.LimitKey
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	DocsRoot  string
	Languages []contract.Language
	// Ext: 文档扩展名，默认 .md
	Ext   string
	Force bool
	// Since: 手工译文检测的起始版本
	Since       string
	Concurrency int
	// Retry: 重试参数（MaxRetries/BaseDelay/Multiplier/MaxDelay/AttemptTimeout）
	Retry         retry.Executor
	BytesPerToken int
	// LLM: provider 名称，仅用于展示
	LLM   string
	Clock clock.Clock
}

// Run 执行完整流水线并返回 RunResult。
// 仅在基础设施失败时返回 error（包裹 ErrInfrastructure）；作业失败体现在 RunResult 中。
func Run(ctx context.Context, candidates []string, comp Components, set Settings, logger *diag.Logger) (*dispatch.RunResult, error) {
	if err := sanity(comp, set); err != nil {
		return nil, xerrors.Errorf("sanity: %w", err)
	}
	clk := set.Clock
	if clk == nil {
		clk = clock.New()
	}
	t0 := clk.Now()
	term := diag.GetTerminal()

	root, err := docsRoot(set.DocsRoot)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), err.Error(), nil)
		return nil, err
	}

	// 1) 手工译文检测（失败开放）
	overrides := override.Detect(ctx, comp.VCS, set.Since, root, set.Languages, logger)

	// 2) 枚举
	etimer := logger.StartWithKV("enumerate", "documents", "", "", map[string]string{"candidates": strconv.Itoa(len(candidates))})
	dirs := make([]string, 0, len(set.Languages))
	for _, l := range set.Languages {
		dirs = append(dirs, l.Dir)
	}
	docs, rejected := enumerate.Documents(candidates, enumerate.Options{Root: root, LangDirs: dirs, Ext: set.Ext}, comp.FS)
	hard := 0
	for _, rj := range rejected {
		code := string(diag.Classify(rj.Err))
		logger.WarnWith("enumerate", code, "rejected: "+rj.Err.Error(), rj.Path, "", nil)
		diag.IncOp("enumerate", "reject", code)
		if !filtered(rj.Err) {
			hard++
		}
	}
	etimer.Finish("documents", int64(len(docs)))
	if len(docs) == 0 && hard > 0 {
		err := xerrors.Errorf("%w: all %d candidates rejected", ErrInfrastructure, len(candidates))
		logger.Error("pipeline", string(diag.CodeInvariant), err.Error(), &t0)
		return nil, err
	}

	// 3) 规划
	jobs := plan.Build(root, docs, set.Languages, overrides, set.Force, comp.FS)
	nt, np, ne := plan.Counts(jobs)
	logger.Info("plan", "jobs planned", map[string]string{
		"translate": strconv.Itoa(nt), "protected": strconv.Itoa(np), "existing": strconv.Itoa(ne),
	})
	term.SkipSummary(np, ne)
	if nt == 0 {
		term.RunEmpty()
	} else {
		term.RunStart(set.Concurrency, set.LLM, nt)
	}

	// 4) 派发
	runner := &dispatch.Runner{
		FS:         comp.FS,
		Translator: comp.Translator,
		Retry:      set.Retry,
		Gate:       comp.Gate,
		GateKey:    comp.GateKey,
		Prompts:    comp.Prompts,
		Estimate:   prompt.MakeEstimator(set.BytesPerToken),
		Clock:      clk,
		Logger:     logger,
	}
	if runner.Retry.Sleeper == nil {
		runner.Retry.Sleeper = retry.ClockSleeper{Clock: clk}
	}
	res := dispatch.Run(ctx, jobs, dispatch.Settings{Concurrency: set.Concurrency}, runner)

	dur := clk.Since(t0)
	logger.Info("pipeline", "run finished", map[string]string{
		"status":     string(res.Status()),
		"translated": strconv.Itoa(res.Translated),
		"skipped":    strconv.Itoa(res.Skipped()),
		"failed":     strconv.Itoa(res.Failed),
		"dur_ms":     strconv.FormatInt(dur.Milliseconds(), 10),
	})
	diag.IncOp("pipeline", "run", string(res.Status()))
	if nt > 0 {
		term.RunFinish(res.Translated, res.Skipped(), res.Failed, dur)
	}
	return res, nil
}

// Missing 扫描 docs 根下缺少译文的源文档并写出列表文件（无缺失时不写）。
func Missing(ctx context.Context, comp Components, set Settings, output string, logger *diag.Logger) (*missing.Report, error) {
	if comp.FS == nil {
		return nil, xerrors.Errorf("sanity: %w: nil file system", contract.ErrInvalidInput)
	}
	w, ok := comp.FS.(missing.Walker)
	if !ok {
		return nil, xerrors.Errorf("sanity: %w: file system cannot walk", contract.ErrInvalidInput)
	}
	root, err := docsRoot(set.DocsRoot)
	if err != nil {
		return nil, err
	}
	rep, err := missing.Scan(ctx, w, root, set.Languages, set.Ext, comp.FS, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	if output == "" {
		output = missing.DefaultOutput
	}
	wrote, err := missing.Save(ctx, rep, output)
	if err != nil {
		logger.Error("missing", string(diag.Classify(err)), err.Error(), nil)
		return rep, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	if wrote {
		logger.Info("missing", "list written", map[string]string{"output": output, "count": strconv.Itoa(len(rep.Entries))})
	}
	diag.GetTerminal().Missing(len(rep.Entries), output)
	return rep, nil
}

func docsRoot(p string) (string, error) {
	root, err := contract.CanonicalPath(p)
	if err != nil {
		return "", fmt.Errorf("%w: docs root %q: %w", ErrInfrastructure, p, err)
	}
	st, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: docs root: %w", ErrInfrastructure, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: docs root %s is not a directory", ErrInfrastructure, root)
	}
	return root, nil
}

// filtered: 预期内的过滤型拒绝（不计为基础设施错误）。
func filtered(err error) bool {
	return errors.Is(err, contract.ErrOutsideRoot) ||
		errors.Is(err, contract.ErrIsTranslation) ||
		errors.Is(err, contract.ErrNotDocument) ||
		errors.Is(err, contract.ErrNotExist)
}

func sanity(comp Components, set Settings) error {
	if comp.FS == nil || comp.Translator == nil {
		return xerrors.Errorf("%w: missing file system or translator", contract.ErrInvalidInput)
	}
	if len(set.Languages) == 0 {
		return xerrors.Errorf("%w: no target languages", contract.ErrInvalidInput)
	}
	return nil
}
