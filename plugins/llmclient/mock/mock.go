package mock

import (
	"context"
	"fmt"
	"strings"

	"doctrans/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	// 输出前缀，默认 "MOCK"
	Prefix string `json:"prefix"`
	// APIKey: 仅用于限流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key"`
	// ResponseMode: 响应模式（用于集成测试与无网络联调）。
	//  - "echo"（默认）: 回显最后一条 user 消息，前缀 Prefix。
	//  - "fixed": 总是返回 Text。
	//  - "summary": 回显 Prompt 类型与首条消息。
	ResponseMode string `json:"response_mode,omitempty"`
	Text         string `json:"text,omitempty"`
}

type Client struct {
	prefix string
	mode   string
	text   string
}

func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "echo"
	}
	return &Client{prefix: o.Prefix, mode: mode, text: o.Text}, nil
}

// Invoke 实现 contract.LLMClient；仅用于模块/流程调试。
func (c *Client) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	switch c.mode {
	case "fixed":
		return contract.Raw{Text: c.text}, nil
	case "echo":
		if s, ok := lastUser(p); ok {
			return contract.Raw{Text: fmt.Sprintf("%s: %s", c.prefix, s)}, nil
		}
	}
	// 兜底：回显 Prompt 摘要
	switch v := p.(type) {
	case contract.TextPrompt:
		return contract.Raw{Text: fmt.Sprintf("%s(text): %s", c.prefix, string(v))}, nil
	case contract.ChatPrompt:
		if len(v) == 0 {
			return contract.Raw{Text: fmt.Sprintf("%s(chat): <empty>", c.prefix)}, nil
		}
		return contract.Raw{Text: fmt.Sprintf("%s(chat:%s): %s", c.prefix, v[0].Role, v[0].Content)}, nil
	default:
		return contract.Raw{Text: fmt.Sprintf("%s(unknown prompt type)", c.prefix)}, nil
	}
}

// lastUser 返回最后一条 user 消息（TextPrompt 视为单条 user 消息）。
func lastUser(p contract.Prompt) (string, bool) {
	switch v := p.(type) {
	case contract.TextPrompt:
		return string(v), true
	case contract.ChatPrompt:
		for i := len(v) - 1; i >= 0; i-- {
			if strings.EqualFold(v[i].Role, "user") {
				return v[i].Content, true
			}
		}
	}
	return "", false
}

var _ contract.LLMClient = (*Client)(nil)
