package contract

import (
	"context"
	"errors"
)

// Raw: LLM 客户端返回的原始文本载荷。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// LLMClient: 以 Prompt 为单位与大模型交互，返回原始文本 Raw。
// 单次调用、同步返回；应尊重 ctx 取消/超时并及时释放资源。
type LLMClient interface {
	Invoke(ctx context.Context, p Prompt) (Raw, error)
}

// Translator: 翻译能力（外部协作者的最小形状）。
// 单次调用、同步返回；所有失败均以 error 返回，由上层重试策略统一处理。
type Translator interface {
	Translate(ctx context.Context, content string, lang Language) (string, error)
}

// 最小错误分类（用于日志/指标）。
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
)
