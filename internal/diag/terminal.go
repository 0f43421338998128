package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/hako/durafmt"
	"github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 进度单行 \r 覆盖且带颜色；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool
	msgs    *Messages

	// 运行期最小状态
	total    int
	started  int
	runStart time.Time

	ok, warn, bad *color.Color

	// 输出控制
	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op；msgs 为空时使用默认 zh 文案。
func NewTerminal(w io.Writer, enabled bool, msgs *Messages) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	if msgs == nil {
		msgs = NewMessages("")
	}
	t := &Terminal{
		w: w, enabled: enabled, msgs: msgs,
		ok: color.New(color.FgGreen), warn: color.New(color.FgYellow), bad: color.New(color.FgRed),
	}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	for _, c := range []*color.Color{t.ok, t.warn, t.bad} {
		if t.isTTY {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// RunStart: 记录运行上下文（并发、LLM、待执行作业数）。
func (t *Terminal) RunStart(concurrency int, llm string, jobs int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.total = jobs
	t.started = 0
	t.runStart = time.Now()
	t.println(t.msgs.T("run_start", map[string]any{"Concurrency": concurrency, "LLM": safe(llm), "Jobs": jobs}))
}

// RunEmpty: 无待翻译作业。
func (t *Terminal) RunEmpty() {
	t.line("run_empty", nil, nil)
}

// SkipSummary: 规划阶段跳过的作业数。
func (t *Terminal) SkipSummary(protected, existing int) {
	if protected == 0 && existing == 0 {
		return
	}
	t.line("skipped_summary", map[string]any{"Protected": protected, "Existing": existing}, nil)
}

// JobStart: 作业开始（[i/total] 序号按开始顺序分配）。
func (t *Terminal) JobStart(source, lang string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.started++
	s := t.msgs.T("job_start", map[string]any{"Index": t.started, "Total": t.total, "Source": safe(source), "Lang": lang})
	if !t.isTTY {
		t.println(s)
		return
	}
	// 节流：100ms
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(s + " | " + formatSince(t.runStart))
}

// JobRetry: 某次尝试失败，即将等待 delay 后重试。
func (t *Terminal) JobRetry(source, lang string, attempt int, delay time.Duration) {
	if t == nil {
		return
	}
	t.line("job_retry", map[string]any{"Source": safe(source), "Lang": lang, "Attempt": attempt, "Delay": formatDur(delay)}, t.warn)
}

// JobFinish: 作业终态（成功或失败）。
func (t *Terminal) JobFinish(source, lang string, attempts int, dur time.Duration, err error) {
	if t == nil {
		return
	}
	if err == nil {
		t.line("job_done", map[string]any{"Source": safe(source), "Lang": lang, "Attempts": attempts, "Dur": formatDur(dur)}, t.ok)
		return
	}
	t.line("job_fail", map[string]any{"Source": safe(source), "Lang": lang, "Attempts": attempts, "Err": safe(err.Error())}, t.bad)
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(succeeded, skipped, failed int, dur time.Duration) {
	if t == nil {
		return
	}
	c, tag := t.ok, "ok"
	if failed > 0 {
		c, tag = t.bad, "fail"
	}
	t.line("run_finish", map[string]any{"Tag": tag, "Succeeded": succeeded, "Skipped": skipped, "Failed": failed, "Dur": formatDur(dur)}, c)
}

// Missing: 缺失译文报告。
func (t *Terminal) Missing(count int, output string) {
	if t == nil {
		return
	}
	c := t.ok
	if count > 0 {
		c = t.warn
	}
	t.line("missing_report", map[string]any{"Count": count, "Output": output}, c)
}

func (t *Terminal) line(id string, data map[string]any, c *color.Color) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	s := t.msgs.T(id, data)
	if c != nil {
		s = c.Sprint(s)
	}
	// 先清掉可能的行尾
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
		_, _ = io.WriteString(t.w, "\r")
	}
	t.println(s)
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 清尾：若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return durafmt.Parse(d.Round(100 * time.Millisecond)).LimitFirstN(2).String()
}
