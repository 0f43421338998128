package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"doctrans/pkg/contract"
)

// LimitKey: 限流分组键（provider + 凭据摘要）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	// requests per minute
	RPM int `json:"rpm" yaml:"rpm" toml:"rpm"`
	// tokens per minute
	TPM int `json:"tpm" yaml:"tpm" toml:"tpm"`
	// 单次请求 token 上限，0 表示不限制
	MaxTokensPerReq int `json:"max_tokens_per_req" yaml:"max_tokens_per_req" toml:"max_tokens_per_req"`
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail, tpmAvail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
// 每个维度为一个按分钟折算速率、容量等于每分钟额度的令牌桶，初始为满。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	mu  sync.Mutex
	lim Limits
	req *xrate.Limiter // RPM 维度；nil 表示关闭
	tok *xrate.Limiter // TPM 维度
}

func newEntry(lim Limits) *entry {
	e := &entry{lim: lim}
	if lim.RPM > 0 {
		e.req = perMinute(lim.RPM)
	}
	if lim.TPM > 0 {
		e.tok = perMinute(lim.TPM)
	}
	return e
}

func perMinute(n int) *xrate.Limiter {
	return xrate.NewLimiter(xrate.Limit(float64(n)/60.0), n)
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

func (e *entry) valid(a Ask) bool {
	if a.Requests <= 0 || a.Tokens < 0 {
		return false
	}
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return false
	}
	// 超过桶容量的申请永远无法满足
	if e.req != nil && a.Requests > e.req.Burst() {
		return false
	}
	if e.tok != nil && a.Tokens > e.tok.Burst() {
		return false
	}
	return true
}

func enough(l *xrate.Limiter, now time.Time, n int) bool {
	return l == nil || n <= 0 || l.TokensAt(now) >= float64(n)
}

func (g *gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if !e.valid(a) {
		return false
	}
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	// 两维度同时满足才扣减
	if !enough(e.req, now, a.Requests) || !enough(e.tok, now, a.Tokens) {
		return false
	}
	if e.req != nil {
		e.req.AllowN(now, a.Requests)
	}
	if e.tok != nil && a.Tokens > 0 {
		e.tok.AllowN(now, a.Tokens)
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if !e.valid(a) {
		return contract.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.clk()
	e.mu.Lock()
	var rs []*xrate.Reservation
	var delay time.Duration
	if e.req != nil {
		rs = append(rs, e.req.ReserveN(now, a.Requests))
	}
	if e.tok != nil && a.Tokens > 0 {
		rs = append(rs, e.tok.ReserveN(now, a.Tokens))
	}
	for _, r := range rs {
		if d := r.DelayFrom(now); d > delay {
			delay = d
		}
	}
	e.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		// 归还未使用的预留
		at := g.clk()
		e.mu.Lock()
		for _, r := range rs {
			r.CancelAt(at)
		}
		e.mu.Unlock()
		return ctx.Err()
	}
}

// Snapshot: 返回当前可用请求/令牌的“向下取整”估值（仅诊断）。
func (g *gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req != nil {
		rpmAvail = clampAvail(e.req.TokensAt(now))
	}
	if e.tok != nil {
		tpmAvail = clampAvail(e.tok.TokensAt(now))
	}
	return
}

func clampAvail(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
