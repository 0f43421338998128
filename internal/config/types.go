package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// 文件键使用 snake_case；未知字段在解析期失败。
type Config struct {
	// DocsRoot: 源文档根目录；译文位于 DocsRoot/<lang.dir>/ 下。
	DocsRoot string `json:"docs_root" yaml:"docs_root" toml:"docs_root"`
	// Extension: 文档扩展名（含点）。
	Extension string `json:"extension" yaml:"extension" toml:"extension"`
	// SourceLanguage: 源文档语言（BCP 47）。
	SourceLanguage string     `json:"source_language" yaml:"source_language" toml:"source_language"`
	Languages      []Language `json:"languages" yaml:"languages" toml:"languages"`

	Concurrency int `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	// MaxRetries: 单作业最大重试次数（>=0）。0 表示不重试。
	MaxRetries int `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	// 以下时长单位均为秒。
	RetryDelay     float64 `json:"retry_delay" yaml:"retry_delay" toml:"retry_delay"`
	RetryBackoff   float64 `json:"retry_backoff" yaml:"retry_backoff" toml:"retry_backoff"`
	MaxDelay       float64 `json:"max_delay" yaml:"max_delay" toml:"max_delay"`
	AttemptTimeout float64 `json:"attempt_timeout" yaml:"attempt_timeout" toml:"attempt_timeout"`
	// BytesPerToken: token 估算参数（限流申请用）；<=0 使用默认 4。
	BytesPerToken int `json:"bytes_per_token" yaml:"bytes_per_token" toml:"bytes_per_token"`

	Force bool `json:"force" yaml:"force" toml:"force"`
	// Since: 手工译文检测的起始版本。
	Since string `json:"since" yaml:"since" toml:"since"`

	UILocale      string  `json:"ui_locale" yaml:"ui_locale" toml:"ui_locale"`
	MissingOutput string  `json:"missing_output" yaml:"missing_output" toml:"missing_output"`
	Logging       Logging `json:"logging" yaml:"logging" toml:"logging"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm" yaml:"llm" toml:"llm"`
	Provider map[string]Provider `json:"provider" yaml:"provider" toml:"provider"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components" yaml:"components" toml:"components"`
	// 各组件 Options 子树，序列化为 JSON 后传入工厂。
	Options Options `json:"options" yaml:"options" toml:"options"`
}

// Language: 目标语言。Name 为空时取英文显示名，Dir 为空时取 Code。
type Language struct {
	Code string `json:"code" yaml:"code" toml:"code"`
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Dir  string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" yaml:"level" toml:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	PromptBuilder string `json:"prompt_builder" yaml:"prompt_builder" toml:"prompt_builder"`
	FileSystem    string `json:"file_system" yaml:"file_system" toml:"file_system"`
	ChangeLister  string `json:"change_lister" yaml:"change_lister" toml:"change_lister"`
}

// Options: 各组件的 Options 子树。
type Options struct {
	PromptBuilder map[string]any `json:"prompt_builder,omitempty" yaml:"prompt_builder,omitempty" toml:"prompt_builder,omitempty"`
	FileSystem    map[string]any `json:"file_system,omitempty" yaml:"file_system,omitempty" toml:"file_system,omitempty"`
	ChangeLister  map[string]any `json:"change_lister,omitempty" yaml:"change_lister,omitempty" toml:"change_lister,omitempty"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
// Client 为空时取 provider 名。
type Provider struct {
	Client  string         `json:"client,omitempty" yaml:"client,omitempty" toml:"client,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	Limits  Limits         `json:"limits" yaml:"limits" toml:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。0 表示不限。
type Limits struct {
	RPM             int `json:"rpm" yaml:"rpm" toml:"rpm"`
	TPM             int `json:"tpm" yaml:"tpm" toml:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req" yaml:"max_tokens_per_req" toml:"max_tokens_per_req"`
}

// Overlay: 环境变量与命令行共用的覆盖层；nil 表示未设置。
// 环境变量名沿用既有部署脚本中的命名。
type Overlay struct {
	ConfigFile     *string  `envconfig:"DOCTRANS_CONFIG_FILE"`
	DocsRoot       *string  `envconfig:"DOCS_ROOT"`
	Concurrency    *int     `envconfig:"MAX_WORKERS"`
	MaxRetries     *int     `envconfig:"MAX_RETRIES"`
	RetryDelay     *float64 `envconfig:"RETRY_DELAY"`
	RetryBackoff   *float64 `envconfig:"RETRY_BACKOFF"`
	AttemptTimeout *float64 `envconfig:"DOCTRANS_ATTEMPT_TIMEOUT"`
	Force          *bool    `envconfig:"FORCE_TRANSLATE"`
	Languages      []string `envconfig:"TARGET_LANGUAGES"`
	Since          *string  `envconfig:"DOCTRANS_SINCE"`
	LLM            *string  `envconfig:"DOCTRANS_LLM"`
	LogLevel       *string  `envconfig:"DOCTRANS_LOG_LEVEL"`
	UILocale       *string  `envconfig:"DOCTRANS_UI_LOCALE"`
	MissingOutput  *string  `envconfig:"DOCTRANS_MISSING_OUTPUT"`
	OpenAIBaseURL  *string  `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel    *string  `envconfig:"OPENAI_MODEL"`
}
