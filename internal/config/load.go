package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Defaults 返回带有默认值的 Config 雏形（沿用既有脚本的默认参数）。
func Defaults() Config {
	return Config{
		DocsRoot:       "docs",
		Extension:      ".md",
		SourceLanguage: "zh",
		Languages: []Language{
			{Code: "en", Name: "English", Dir: "en"},
			{Code: "ja", Name: "Japanese", Dir: "ja"},
		},
		Concurrency:    3,
		MaxRetries:     3,
		RetryDelay:     2,
		RetryBackoff:   2,
		AttemptTimeout: 300,
		BytesPerToken:  4,
		Since:          "HEAD~1",
		UILocale:       "zh",
		MissingOutput:  "/tmp/missing_files.txt",
		Logging:        Logging{Level: "info"},
		LLM:            "openai",
		Provider: map[string]Provider{
			"openai": {
				Client:  "openai",
				Options: map[string]any{"model": "gpt-4o-mini", "temperature": 0.3, "timeout_seconds": 300},
			},
			"gemini": {Client: "gemini"},
			"mock":   {Client: "mock"},
			"flaky":  {Client: "flaky"},
		},
		Components: Components{
			PromptBuilder: "translate",
			FileSystem:    "local",
			ChangeLister:  "git",
		},
	}
}

// LoadFile 将配置文件叠加到 cfg 上（仅覆盖文件中出现的键）。
// 格式由扩展名决定：.yaml/.yml、.toml、.json；均严格拒绝未知字段。
func LoadFile(path string, cfg *Config) error {
	p, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	return Decode(strings.ToLower(filepath.Ext(p)), raw, cfg)
}

// Decode 按格式解析原始字节并叠加到 cfg。ext 为 ".yaml"/".yml"/".toml"/".json"。
func Decode(ext string, raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return xerrors.Errorf("yaml: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return xerrors.Errorf("toml: %w", err)
		}
	case ".json":
		// encoding/json 复用已有切片元素；出现 languages 键时整体替换
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keys); err != nil {
			return xerrors.Errorf("json: %w", err)
		}
		for k := range keys {
			if strings.EqualFold(k, "languages") {
				cfg.Languages = nil
			}
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return xerrors.Errorf("json: %w", err)
		}
	default:
		return xerrors.Errorf("config: unsupported format %q", ext)
	}
	return nil
}

// FromEnv 读取环境变量覆盖层。
func FromEnv() (Overlay, error) {
	var ov Overlay
	if err := envconfig.Process("", &ov); err != nil {
		return Overlay{}, xerrors.Errorf("env: %w", err)
	}
	return ov, nil
}

// Apply 将覆盖层中已设置的字段写入 c。
func (c *Config) Apply(ov Overlay) {
	if ov.DocsRoot != nil {
		c.DocsRoot = strings.TrimSpace(*ov.DocsRoot)
	}
	if ov.Concurrency != nil {
		c.Concurrency = *ov.Concurrency
	}
	if ov.MaxRetries != nil {
		c.MaxRetries = *ov.MaxRetries
	}
	if ov.RetryDelay != nil {
		c.RetryDelay = *ov.RetryDelay
	}
	if ov.RetryBackoff != nil {
		c.RetryBackoff = *ov.RetryBackoff
	}
	if ov.AttemptTimeout != nil {
		c.AttemptTimeout = *ov.AttemptTimeout
	}
	if ov.Force != nil {
		c.Force = *ov.Force
	}
	if ov.Languages != nil {
		c.Languages = pickLanguages(c.Languages, ov.Languages)
	}
	if ov.Since != nil {
		c.Since = strings.TrimSpace(*ov.Since)
	}
	if ov.LLM != nil {
		c.LLM = strings.TrimSpace(*ov.LLM)
	}
	if ov.LogLevel != nil {
		c.Logging.Level = strings.TrimSpace(*ov.LogLevel)
	}
	if ov.UILocale != nil {
		c.UILocale = strings.TrimSpace(*ov.UILocale)
	}
	if ov.MissingOutput != nil {
		c.MissingOutput = strings.TrimSpace(*ov.MissingOutput)
	}
	if ov.OpenAIBaseURL != nil {
		c.setProviderOption("openai", "base_url", *ov.OpenAIBaseURL)
	}
	if ov.OpenAIModel != nil {
		c.setProviderOption("openai", "model", *ov.OpenAIModel)
	}
}

// pickLanguages: 按代码列表选择语言；已配置的语言保留其 Name/Dir。
func pickLanguages(known []Language, codes []string) []Language {
	out := make([]Language, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		l, ok := lo.Find(known, func(l Language) bool { return strings.EqualFold(l.Code, code) })
		if !ok {
			l = Language{Code: code}
		}
		out = append(out, l)
	}
	return out
}

func (c *Config) setProviderOption(name, key string, val any) {
	if c.Provider == nil {
		c.Provider = map[string]Provider{}
	}
	p := c.Provider[name]
	opts := make(map[string]any, len(p.Options)+1)
	for k, v := range p.Options {
		opts[k] = v
	}
	opts[key] = val
	p.Options = opts
	c.Provider[name] = p
}

// Normalize 填充派生默认值并展开路径中的 ~。
func (c *Config) Normalize() error {
	var err error
	if c.DocsRoot, err = homedir.Expand(strings.TrimSpace(c.DocsRoot)); err != nil {
		return xerrors.Errorf("docs_root: %w", err)
	}
	if c.MissingOutput, err = homedir.Expand(strings.TrimSpace(c.MissingOutput)); err != nil {
		return xerrors.Errorf("missing_output: %w", err)
	}
	for _, k := range []string{"glossary_path", "system_template_path"} {
		if s, ok := c.Options.PromptBuilder[k].(string); ok && s != "" {
			if c.Options.PromptBuilder[k], err = homedir.Expand(s); err != nil {
				return xerrors.Errorf("options.prompt_builder.%s: %w", k, err)
			}
		}
	}
	ext := strings.TrimSpace(c.Extension)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Extension = ext
	for i := range c.Languages {
		l := &c.Languages[i]
		l.Code = strings.TrimSpace(l.Code)
		if tag, err := language.Parse(l.Code); err == nil && strings.TrimSpace(l.Name) == "" {
			l.Name = display.English.Tags().Name(tag)
		}
		if strings.TrimSpace(l.Dir) == "" {
			l.Dir = l.Code
		}
	}
	for name, p := range c.Provider {
		if p.Client == "" {
			p.Client = name
			c.Provider[name] = p
		}
	}
	return nil
}

// Load 按层合并：Defaults → 配置文件 → 环境 → 命令行，随后规范化并校验。
// 配置文件路径取 flags.ConfigFile，其次 env.ConfigFile；均为空时跳过。
func Load(env, flags Overlay) (Config, error) {
	cfg := Defaults()
	path := ""
	if env.ConfigFile != nil {
		path = *env.ConfigFile
	}
	if flags.ConfigFile != nil {
		path = *flags.ConfigFile
	}
	if strings.TrimSpace(path) != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, xerrors.Errorf("config file %s: %w", path, err)
		}
	}
	cfg.Apply(env)
	cfg.Apply(flags)
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
