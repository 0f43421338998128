package config

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"doctrans/plugins/llmclient/gemini"
)

// 模板文件名。
const (
	TemplateConfigName = "doctrans.yaml"
	TemplateEnvName    = ".env"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认参数与 Defaults 一致；
// - 各 provider 给出常用选项键，值为中性默认；
// - mock provider 附带限额示例，便于离线调试。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Provider["openai"] = Provider{
		Client: "openai",
		Options: map[string]any{
			"base_url":        "https://api.openai.com/v1",
			"model":           "gpt-4o-mini",
			"api_key_env":     "OPENAI_API_KEY",
			"timeout_seconds": 300,
			"temperature":     0.3,
		},
	}
	cfg.Provider["gemini"] = Provider{
		Client: "gemini",
		Options: map[string]any{
			"model":       gemini.DefaultModel,
			"api_key_env": "GOOGLE_API_KEY",
		},
	}
	cfg.Provider["mock"] = Provider{
		Client:  "mock",
		Options: map[string]any{"prefix": "MOCK"},
		Limits:  Limits{RPM: 60, TPM: 100000, MaxTokensPerReq: 16000},
	}
	cfg.Options.PromptBuilder = map[string]any{"glossary_path": "", "system_template_path": ""}
	cfg.Options.FileSystem = map[string]any{"atomic": true, "exclude_dir_names": []string{"node_modules", "vendor"}}
	return cfg
}

// TemplateYAML 序列化模板配置。
func TemplateYAML() ([]byte, error) {
	return yaml.Marshal(DefaultTemplateConfig())
}

// EnvTemplate: .env 模板；仅含注释掉的示例，加载时不影响已有环境。
const EnvTemplate = `# doctrans environment overrides (existing environment variables win)
# OPENAI_API_KEY=
# OPENAI_BASE_URL=https://api.openai.com/v1
# OPENAI_MODEL=gpt-4o-mini
# GOOGLE_API_KEY=
# DOCS_ROOT=docs
# TARGET_LANGUAGES=en,ja
# MAX_WORKERS=3
# MAX_RETRIES=3
# RETRY_DELAY=2
# RETRY_BACKOFF=2.0
# FORCE_TRANSLATE=false
# DOCTRANS_LLM=openai
# DOCTRANS_LOG_LEVEL=info
`

// WriteTemplates 在 dir 下写出配置模板与 .env 模板；已存在的文件不覆盖。
// 返回实际写出的文件与跳过的文件。
func WriteTemplates(dir string) (written, skipped []string, err error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	body, err := TemplateYAML()
	if err != nil {
		return nil, nil, xerrors.Errorf("template: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{TemplateConfigName, body},
		{TemplateEnvName, []byte(EnvTemplate)},
	}
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		ok, err := writeExclusive(p, f.data)
		if err != nil {
			return written, skipped, xerrors.Errorf("write %s: %w", p, err)
		}
		if ok {
			written = append(written, p)
		} else {
			skipped = append(skipped, p)
		}
	}
	return written, skipped, nil
}

func writeExclusive(p string, data []byte) (bool, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
