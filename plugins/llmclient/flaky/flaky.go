package flaky

import (
	"context"
	"os"
	"sync/atomic"

	"doctrans/pkg/contract"
	"doctrans/plugins/llmclient/mock"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// FailFirst: 前 N 次调用失败（默认 2），之后与 mock 的 echo 模式一致。
	FailFirst int `json:"fail_first"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的 LLM 实现，用于演练重试：
// 失败调用交替返回 ErrRateLimited 与空响应（ErrResponseInvalid）。
type Client struct {
	failFirst int32
	logPath   string
	count     atomic.Int32
	echo      *mock.Client
}

// New 构造 Client。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	if o.FailFirst < 0 {
		o.FailFirst = 0
	} else if o.FailFirst == 0 {
		o.FailFirst = 2
	}
	echo, err := mock.New(&mock.Options{Prefix: o.Prefix})
	if err != nil {
		return nil, err
	}
	return &Client{failFirst: int32(o.FailFirst), logPath: o.LogPath, echo: echo}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Calls 返回累计调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	n := c.count.Add(1)
	if n <= c.failFirst {
		if n%2 == 1 {
			c.log("rate_limited")
			return contract.Raw{}, contract.ErrRateLimited
		}
		c.log("invalid")
		return contract.Raw{}, contract.ErrResponseInvalid
	}
	c.log("ok")
	return c.echo.Invoke(ctx, p)
}

var _ contract.LLMClient = (*Client)(nil)
