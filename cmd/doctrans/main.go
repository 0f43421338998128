package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"doctrans/internal/config"
	"doctrans/internal/diag"
	"doctrans/internal/pipeline"
)

var (
	pipelineRun     = pipeline.Run
	pipelineMissing = pipeline.Missing
)

// 退出码。
const (
	exitOK      = 0
	exitPartial = 1
	exitInfra   = 2
	exitConfig  = 3
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := newApp(stdin, stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return exitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := strings.TrimSpace(ec.Error()); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return ec.ExitCode()
	}
	// 旗标解析等用法错误
	fmt.Fprintln(stderr, err)
	return exitConfig
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "doctrans",
		Usage:     "将 Markdown 源文档并发翻译为多种目标语言",
		UsageText: "doctrans [translate] [flags] <file.md>...\ndoctrans missing [--output FILE]\ndoctrans init-config [DIR]",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		// 退出码由 run 统一处理，不在库内 os.Exit
		ExitErrHandler: func(*cli.Context, error) {},
		HideVersion:    true,
		Flags:          translateFlags(),
		Action:         translateAction,
		Commands: []*cli.Command{
			{
				Name:      "translate",
				Usage:     "翻译指定的源文档（默认命令）",
				ArgsUsage: "<file.md>...",
				Flags:     translateFlags(),
				Action:    translateAction,
			},
			{
				Name:  "missing",
				Usage: "列出缺少译文的源文档并写入列表文件",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "列表文件路径（默认 /tmp/missing_files.txt）"},
				),
				Action: missingAction,
			},
			{
				Name:      "init-config",
				Usage:     "生成默认配置与 .env 模板（已存在则跳过，不覆盖）",
				ArgsUsage: "[DIR]",
				Action:    initConfigAction,
			},
		},
	}
}

func translateFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "并发 worker 数（覆盖配置）"},
		&cli.IntFlag{Name: "max-retries", Usage: "单作业最大重试次数（0 表示不重试）"},
		&cli.Float64Flag{Name: "retry-delay", Usage: "首次重试前等待（秒）"},
		&cli.Float64Flag{Name: "retry-backoff", Usage: "退避倍数（>1）"},
		&cli.Float64Flag{Name: "attempt-timeout", Usage: "单次调用超时（秒，0 表示不设）"},
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "覆盖已存在的译文（人工修改过的译文仍受保护）"},
		&cli.StringFlag{Name: "since", Usage: "检测人工译文的起始版本（默认 HEAD~1）"},
		&cli.StringFlag{Name: "llm", Usage: "provider 名称（覆盖配置）"},
		&cli.StringFlag{Name: "files-from", Usage: "从文件读取待翻译路径（每行一个；- 表示 STDIN）"},
	)
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "配置文件（.yaml/.yml/.toml/.json）"},
		&cli.StringFlag{Name: "docs-root", Usage: "源文档根目录"},
		&cli.StringSliceFlag{Name: "languages", Aliases: []string{"l"}, Usage: "目标语言代码，逗号分隔（如 en,ja）"},
		&cli.StringFlag{Name: "log-level", Usage: "日志级别：debug|info|warn|error"},
		&cli.BoolFlag{Name: "status", Value: true, Usage: "终端状态提示（stderr）。TTY 动态刷新；非 TTY 逐行输出"},
		&cli.StringFlag{Name: "metrics-file", Usage: "运行结束后以 Prometheus 文本格式写出指标"},
	}
}

// overlayFromFlags: 仅收集显式设置的旗标。
func overlayFromFlags(c *cli.Context) config.Overlay {
	var ov config.Overlay
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		s := c.String(name)
		return &s
	}
	num := func(name string) *int {
		if !c.IsSet(name) {
			return nil
		}
		n := c.Int(name)
		return &n
	}
	flt := func(name string) *float64 {
		if !c.IsSet(name) {
			return nil
		}
		f := c.Float64(name)
		return &f
	}
	ov.ConfigFile = str("config")
	ov.DocsRoot = str("docs-root")
	ov.LogLevel = str("log-level")
	ov.Since = str("since")
	ov.LLM = str("llm")
	ov.Concurrency = num("concurrency")
	ov.MaxRetries = num("max-retries")
	ov.RetryDelay = flt("retry-delay")
	ov.RetryBackoff = flt("retry-backoff")
	ov.AttemptTimeout = flt("attempt-timeout")
	if c.IsSet("force") {
		f := c.Bool("force")
		ov.Force = &f
	}
	if c.IsSet("languages") {
		for _, v := range c.StringSlice("languages") {
			ov.Languages = append(ov.Languages, strings.Split(v, ",")...)
		}
	}
	return ov
}

// session: 单次命令的配置、日志与终端上下文。
type session struct {
	cfg    config.Config
	logger *diag.Logger
	start  time.Time
}

func openSession(c *cli.Context) (*session, error) {
	start := time.Now()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, cli.Exit(fmt.Sprintf(".env 解析失败: %v", err), exitConfig)
	}
	env, err := config.FromEnv()
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("环境变量解析失败: %v", err), exitConfig)
	}
	cfg, err := config.Load(env, overlayFromFlags(c))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("配置错误: %v", err), exitConfig)
	}
	logger := diag.NewLogger(uuid.NewString(), cfg.Logging.Level)
	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	diag.SetTerminal(diag.NewTerminal(c.App.ErrWriter, c.Bool("status"), diag.NewMessages(cfg.UILocale)))
	return &session{cfg: cfg, logger: logger, start: start}, nil
}

func (s *session) close(c *cli.Context, cmd string) {
	diag.SetTerminal(nil)
	diag.ObserveDuration("cli", cmd, time.Since(s.start).Milliseconds())
	if p := c.String("metrics-file"); p != "" {
		if err := diag.WriteMetrics(p); err != nil {
			s.logger.WarnWith("cli", string(diag.Classify(err)), "metrics dump failed: "+err.Error(), "", "", nil)
			fmt.Fprintf(c.App.ErrWriter, "指标写出失败: %v\n", err)
		}
	}
	_ = s.logger.Close()
}

func translateAction(c *cli.Context) error {
	if !c.Args().Present() && !c.IsSet("files-from") {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("用法: doctrans [translate] [flags] <file.md>...", exitConfig)
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close(c, "translate")

	candidates := c.Args().Slice()
	if p := c.String("files-from"); p != "" {
		list, err := readList(p, c.App.Reader)
		if err != nil {
			return cli.Exit(fmt.Sprintf("读取路径列表失败: %v", err), exitConfig)
		}
		candidates = append(candidates, list...)
	}

	comp, set, err := config.Assemble(s.cfg, s.logger)
	if err != nil {
		s.logger.Error("cli", string(diag.Classify(err)), "assemble failed: "+err.Error(), &s.start)
		return cli.Exit(fmt.Sprintf("装配失败: %v", err), exitConfig)
	}
	logEffective(s)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipelineRun(ctx, candidates, comp, set, s.logger)
	if err != nil {
		code := exitConfig
		if errors.Is(err, pipeline.ErrInfrastructure) {
			code = exitInfra
		}
		s.logger.Error("cli", string(diag.Classify(err)), "run failed: "+err.Error(), &s.start)
		diag.IncOp("cli", "translate", "error")
		return cli.Exit(fmt.Sprintf("运行失败: %v", err), code)
	}
	diag.IncOp("cli", "translate", string(res.Status()))
	if res.Failed == 0 {
		return nil
	}
	fmt.Fprintf(c.App.ErrWriter, "失败 %d 项:\n", res.Failed)
	for _, f := range res.Failures {
		fmt.Fprintf(c.App.ErrWriter, "  %s -> %s: %v\n", f.Source, f.Lang, f.Err)
	}
	return cli.Exit("", exitPartial)
}

func missingAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close(c, "missing")

	comp, set, err := config.AssembleFS(s.cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("装配失败: %v", err), exitConfig)
	}
	output := s.cfg.MissingOutput
	if c.IsSet("output") {
		output = c.String("output")
	}
	rep, err := pipelineMissing(c.Context, comp, set, output, s.logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("检测失败: %v", err), exitInfra)
	}
	w := c.App.Writer
	for _, l := range set.Languages {
		fmt.Fprintf(w, "%s: %d\n", strings.ToUpper(l.Code), rep.PerLang[l.Code])
	}
	for i, e := range rep.Entries {
		fmt.Fprintf(w, "%3d. %s [%s]\n", i+1, e.Doc.Rel, strings.ToUpper(strings.Join(e.Missing, ", ")))
	}
	return nil
}

func initConfigAction(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		dir = "."
	}
	written, skipped, err := config.WriteTemplates(dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("生成默认配置失败: %v", err), exitConfig)
	}
	for _, p := range written {
		fmt.Fprintf(c.App.Writer, "created %s\n", p)
	}
	for _, p := range skipped {
		fmt.Fprintf(c.App.Writer, "exists, skipped %s\n", p)
	}
	return nil
}

// readList 读取每行一个路径的列表；忽略空行与 # 注释。
func readList(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// logEffective: debug 输出运行时配置信息（不含密钥）。
func logEffective(s *session) {
	cfg := s.cfg
	kv := map[string]string{
		"docs_root":   cfg.DocsRoot,
		"concurrency": strconv.Itoa(cfg.Concurrency),
		"max_retries": strconv.Itoa(cfg.MaxRetries),
		"retry_delay": strconv.FormatFloat(cfg.RetryDelay, 'f', -1, 64),
		"backoff":     strconv.FormatFloat(cfg.RetryBackoff, 'f', -1, 64),
		"force":       strconv.FormatBool(cfg.Force),
		"since":       cfg.Since,
		"llm":         cfg.LLM,
		"languages":   strconv.Itoa(len(cfg.Languages)),
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		for _, k := range []string{"base_url", "model", "endpoint_path"} {
			if v, ok := p.Options[k].(string); ok && v != "" {
				kv[k] = v
			}
		}
	}
	s.logger.DebugStart("config", "effective", "", "", kv)
}
