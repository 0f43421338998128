package prompt

import "doctrans/pkg/contract"

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// PromptTokens 估算 Prompt 载荷的输入 token（TextPrompt/ChatPrompt；未知类型记 0）。
func PromptTokens(p contract.Prompt, est contract.TokenEstimator) int {
	switch v := p.(type) {
	case contract.TextPrompt:
		return est(string(v))
	case contract.ChatPrompt:
		n := 0
		for _, m := range v {
			n += est(m.Content)
		}
		return n
	case string:
		return est(v)
	default:
		return 0
	}
}

// RequestTokens 估算一次翻译请求的总 token：输入 Prompt + 预期输出（按原文等长估计）。
// 结果用于限流闸门的 TPM 申请。
func RequestTokens(p contract.Prompt, content string, est contract.TokenEstimator) int {
	return PromptTokens(p, est) + est(content)
}
