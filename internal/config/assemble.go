package config

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/xerrors"

	"doctrans/internal/diag"
	"doctrans/internal/pipeline"
	"doctrans/internal/rate"
	"doctrans/internal/retry"
	"doctrans/internal/translator"
	"doctrans/pkg/contract"
	"doctrans/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DocsRoot) == "" {
		return xerrors.New("config: docs_root empty")
	}
	if cfg.Concurrency < 1 {
		return xerrors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return xerrors.New("config: max_retries must be >= 0")
	}
	if cfg.RetryDelay <= 0 {
		return xerrors.New("config: retry_delay must be > 0")
	}
	if cfg.RetryBackoff <= 1 {
		return xerrors.New("config: retry_backoff must be > 1")
	}
	if cfg.MaxDelay < 0 || cfg.AttemptTimeout < 0 {
		return xerrors.New("config: max_delay/attempt_timeout must be >= 0")
	}
	if len(cfg.Extension) < 2 || !strings.HasPrefix(cfg.Extension, ".") {
		return xerrors.Errorf("config: invalid extension %q", cfg.Extension)
	}
	if cfg.SourceLanguage != "" {
		if _, err := language.Parse(cfg.SourceLanguage); err != nil {
			return xerrors.Errorf("config: source_language %q: %w", cfg.SourceLanguage, err)
		}
	}
	if err := validateLanguages(cfg.Languages); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return xerrors.Errorf("config: unknown log level %q", cfg.Logging.Level)
	}
	if cfg.LLM == "" {
		return xerrors.New("config: llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return xerrors.Errorf("config: provider %q not found", cfg.LLM)
	}
	client := effName(prov.Client, cfg.LLM)
	if registry.LLMClient[client] == nil {
		return xerrors.Errorf("config: llm client %q not registered", client)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.PromptBuilder, d.PromptBuilder); registry.PromptBuilder[name] == nil {
		return xerrors.Errorf("config: prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.FileSystem, d.FileSystem); registry.FileSystem[name] == nil {
		return xerrors.Errorf("config: file_system %q not registered", name)
	}
	if name := effName(cfg.Components.ChangeLister, d.ChangeLister); registry.ChangeLister[name] == nil {
		return xerrors.Errorf("config: change_lister %q not registered", name)
	}
	return nil
}

func validateLanguages(langs []Language) error {
	if len(langs) == 0 {
		return xerrors.New("config: languages empty")
	}
	for _, l := range langs {
		if _, err := language.Parse(l.Code); err != nil {
			return xerrors.Errorf("config: language %q: %w", l.Code, err)
		}
		if l.Dir == "" || l.Dir == "." || l.Dir == ".." || strings.ContainsAny(l.Dir, `/\`) || filepath.IsAbs(l.Dir) {
			return xerrors.Errorf("config: language %q: invalid dir %q", l.Code, l.Dir)
		}
	}
	if len(lo.UniqBy(langs, func(l Language) string { return strings.ToLower(l.Dir) })) != len(langs) {
		return xerrors.New("config: language dirs must be unique")
	}
	if len(lo.UniqBy(langs, func(l Language) string { return strings.ToLower(l.Code) })) != len(langs) {
		return xerrors.New("config: language codes must be unique")
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate+Key）。
// 严格 Options 解析在 registry（工厂）层进行；此处只负责序列化与缺省注入。
func Assemble(cfg Config, logger *diag.Logger) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults().Components

	// Prompt：未指定源语言时由 source_language 推导英文名
	popts := withDefault(cfg.Options.PromptBuilder, "source_language", sourceName(cfg.SourceLanguage))
	pb, err := build(registry.PromptBuilder[effName(cfg.Components.PromptBuilder, d.PromptBuilder)], popts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, xerrors.Errorf("prompt_builder: %w", err)
	}
	fs, err := buildFS(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	// git 工作目录默认即 docs 根
	vcs, err := build(registry.ChangeLister[effName(cfg.Components.ChangeLister, d.ChangeLister)], withDefault(cfg.Options.ChangeLister, "dir", cfg.DocsRoot))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, xerrors.Errorf("change_lister: %w", err)
	}

	// LLM 客户端
	prov := cfg.Provider[cfg.LLM]
	client := effName(prov.Client, cfg.LLM)
	llm, err := build(registry.LLMClient[client], prov.Options)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, xerrors.Errorf("llm %s: %w", cfg.LLM, err)
	}

	// 限流 Gate（按 provider 限额构造；分组键从 options 中派生 API Key）
	// 默认使用 API Key 派生分组键（更稳定）；若失败则退化为 provider 名称。
	key, derr := rate.DeriveKey(client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	comp := pipeline.Components{
		FS:         fs,
		VCS:        vcs,
		Translator: &translator.Translator{Builder: pb, Client: llm, Logger: logger},
		Prompts:    pb,
		Gate:       gate,
		GateKey:    key,
	}
	return comp, settings(cfg), nil
}

// AssembleFS 仅构造文件系统与运行设置（无需 LLM 的子命令使用）。
func AssembleFS(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	fs, err := buildFS(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	return pipeline.Components{FS: fs}, settings(cfg), nil
}

// buildFS: 文件系统根默认即 docs 根。
func buildFS(cfg Config) (contract.FileSystem, error) {
	name := effName(cfg.Components.FileSystem, Defaults().Components.FileSystem)
	fs, err := build(registry.FileSystem[name], withDefault(cfg.Options.FileSystem, "root", cfg.DocsRoot))
	if err != nil {
		return nil, xerrors.Errorf("file_system: %w", err)
	}
	return fs, nil
}

func settings(cfg Config) pipeline.Settings {
	return pipeline.Settings{
		DocsRoot:    cfg.DocsRoot,
		Languages:   Languages(cfg.Languages),
		Ext:         cfg.Extension,
		Force:       cfg.Force,
		Since:       cfg.Since,
		Concurrency: cfg.Concurrency,
		Retry: retry.Executor{
			MaxRetries:     cfg.MaxRetries,
			BaseDelay:      seconds(cfg.RetryDelay),
			Multiplier:     cfg.RetryBackoff,
			MaxDelay:       seconds(cfg.MaxDelay),
			AttemptTimeout: seconds(cfg.AttemptTimeout),
		},
		BytesPerToken: cfg.BytesPerToken,
		LLM:           cfg.LLM,
	}
}

// Languages 转换为运行期语言集合。
func Languages(in []Language) []contract.Language {
	return lo.Map(in, func(l Language, _ int) contract.Language {
		return contract.Language{Code: l.Code, Name: l.Name, Dir: l.Dir}
	})
}

func build[T any](factory func(json.RawMessage) (T, error), opts map[string]any) (T, error) {
	var zero T
	if factory == nil {
		return zero, xerrors.Errorf("%w: factory not registered", contract.ErrInvalidInput)
	}
	var raw json.RawMessage
	if len(opts) > 0 {
		b, err := json.Marshal(opts)
		if err != nil {
			return zero, err
		}
		raw = b
	}
	return factory(raw)
}

// withDefault 返回带缺省键的副本；已存在的键不覆盖。
func withDefault(opts map[string]any, key string, val any) map[string]any {
	out := make(map[string]any, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	if _, ok := out[key]; !ok && val != "" {
		out[key] = val
	}
	return out
}

func sourceName(code string) string {
	tag, err := language.Parse(code)
	if err != nil || code == "" {
		return ""
	}
	return display.English.Tags().Name(tag)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
