package translate

import (
	"bytes"
	"context"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/xerrors"

	"doctrans/pkg/contract"
)

// Options 为 Markdown 文档翻译 PromptBuilder 的最小配置。
// - InlineSystemTemplate / SystemTemplatePath: system 提示模板（二选一，均为空时使用内置默认模板）。
// - InlineGlossary / GlossaryPath: 术语对照表（可选），拼接在 user 消息的规则之后。
type Options struct {
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	InlineGlossary       string `json:"inline_glossary"`
	GlossaryPath         string `json:"glossary_path"`
	// SourceLanguage: 源语言名称，默认 Chinese。
	SourceLanguage string `json:"source_language"`
}

// Builder: 以文档正文与目标语言构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板在构造期解析。
type Builder struct {
	sysT  *template.Template
	userT *template.Template
	glos  string
	src   string
}

// New 创建文档翻译 PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}

	src := defaultSystemTemplate
	if o.InlineSystemTemplate != "" {
		src = o.InlineSystemTemplate
	} else if o.SystemTemplatePath != "" {
		b, err := os.ReadFile(o.SystemTemplatePath)
		if err != nil {
			return nil, xerrors.Errorf("system template read: %w", err)
		}
		src = string(b)
	}
	sysT, err := template.New("system").Funcs(sprig.TxtFuncMap()).Parse(src)
	if err != nil {
		return nil, xerrors.Errorf("system template parse: %w", err)
	}
	userT := template.Must(template.New("user").Funcs(sprig.TxtFuncMap()).Parse(defaultUserTemplate))

	var glos string
	if o.InlineGlossary != "" {
		glos = o.InlineGlossary
	} else if o.GlossaryPath != "" {
		b, err := os.ReadFile(o.GlossaryPath)
		if err != nil {
			return nil, xerrors.Errorf("glossary read: %w", err)
		}
		glos = string(b)
	}
	if o.SourceLanguage == "" {
		o.SourceLanguage = "Chinese"
	}
	return &Builder{sysT: sysT, userT: userT, glos: strings.TrimSpace(glos), src: o.SourceLanguage}, nil
}

type tplData struct {
	Lang           contract.Language
	SourceLanguage string
	Glossary       string
}

// Build: 构造 ChatPrompt。正文原样追加在 user 消息末尾，不经模板渲染。
func (b *Builder) Build(ctx context.Context, content string, lang contract.Language) (contract.Prompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if strings.TrimSpace(content) == "" {
		return nil, xerrors.Errorf("prompt: %w: empty content", contract.ErrInvalidInput)
	}
	if lang.Code == "" {
		return nil, xerrors.Errorf("prompt: %w: empty language", contract.ErrInvalidInput)
	}
	data := tplData{Lang: lang, SourceLanguage: b.src, Glossary: b.glos}
	var sys, user bytes.Buffer
	if err := b.sysT.Execute(&sys, data); err != nil {
		return nil, xerrors.Errorf("system template exec: %w", err)
	}
	if err := b.userT.Execute(&user, data); err != nil {
		return nil, xerrors.Errorf("user template exec: %w", err)
	}
	user.WriteString(content)
	return contract.ChatPrompt{
		{Role: "system", Content: strings.TrimSpace(sys.String())},
		{Role: "user", Content: user.String()},
	}, nil
}

const defaultSystemTemplate = `
You are a professional technical documentation translator. Translate accurately from {{ .SourceLanguage }} into {{ .Lang.Name | default .Lang.Code }} while preserving Markdown formatting, code blocks, and technical terms.
`

const defaultUserTemplate = `Translate the following Markdown document from {{ .SourceLanguage }} into {{ .Lang.Name | default .Lang.Code }} ({{ .Lang.Code | lower }}).

Rules:
1. Keep the Markdown structure intact: headings, lists, tables, code blocks, links.
2. Do not translate the contents of code blocks.
3. Keep image paths and link targets unchanged.
4. Translate the values in the YAML front matter.
5. Keep product names and proper nouns unchanged.
{{- with .Glossary }}

Glossary (use these renderings; do not include the glossary in the output):

{{ . }}
{{- end }}

Return only the translated document without any explanation.

Source:

`

var _ contract.PromptBuilder = (*Builder)(nil)
