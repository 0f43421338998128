// Package translator 将 PromptBuilder 与 LLMClient 组合为 contract.Translator。
package translator

import (
	"context"
	"strings"

	"golang.org/x/xerrors"

	"doctrans/internal/diag"
	"doctrans/pkg/contract"
)

type Translator struct {
	Builder contract.PromptBuilder
	Client  contract.LLMClient
	Logger  *diag.Logger
}

var _ contract.Translator = (*Translator)(nil)

// Translate: 构造提示词 → 单次调用 → 去除首尾空白。空响应视为无效响应。
func (t *Translator) Translate(ctx context.Context, content string, lang contract.Language) (string, error) {
	if t == nil || t.Builder == nil || t.Client == nil {
		return "", xerrors.Errorf("translator: %w: not assembled", contract.ErrInvalidInput)
	}
	p, err := t.Builder.Build(ctx, content, lang)
	if err != nil {
		return "", xerrors.Errorf("build prompt: %w", err)
	}
	t.Logger.DebugStart("llm", "invoke", "", lang.Code, nil)
	raw, err := t.Client.Invoke(ctx, p)
	if err != nil {
		return "", xerrors.Errorf("invoke: %w", err)
	}
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return "", xerrors.Errorf("empty translation: %w", contract.ErrResponseInvalid)
	}
	return text, nil
}
