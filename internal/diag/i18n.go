package diag

import (
	"embed"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed locales/active.*.toml
var localeFS embed.FS

// Messages: 终端提示文案（go-i18n，内嵌 zh/en）。
type Messages struct {
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
}

// NewMessages 以给定 locale 构造文案表；未知 locale 回落到 zh。
func NewMessages(locale string) *Messages {
	bundle := i18n.NewBundle(language.Chinese)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, f := range []string{"locales/active.zh.toml", "locales/active.en.toml"} {
		// 内嵌文件，加载失败仅影响对应语言
		_, _ = bundle.LoadMessageFileFS(localeFS, f)
	}
	langs := []string{}
	if locale != "" {
		langs = append(langs, locale)
	}
	langs = append(langs, language.Chinese.String())
	return &Messages{bundle: bundle, localizer: i18n.NewLocalizer(bundle, langs...)}
}

// T 渲染 id 对应文案；找不到时返回 id 本身。
func (m *Messages) T(id string, data map[string]any) string {
	if m == nil || id == "" {
		return id
	}
	s, err := m.localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return s
}
