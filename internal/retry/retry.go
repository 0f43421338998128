// Package retry 提供单次翻译调用外层的有界指数退避重试。
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"doctrans/pkg/contract"
)

// Sleeper: 退避等待（可注入）；ctx 取消时应尽快返回 ctx.Err()。
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ClockSleeper 基于 raulk/clock 的默认 Sleeper；测试可注入 clock.NewMock()。
type ClockSleeper struct {
	Clock clock.Clock
}

func (s ClockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor: 重试参数。零值不可用，使用前应设置 MaxRetries/BaseDelay/Multiplier。
type Executor struct {
	// MaxRetries: 最多重试次数 R（总尝试 R+1）。
	MaxRetries int
	// BaseDelay: 首次重试前的等待 D。
	BaseDelay time.Duration
	// Multiplier: 退避倍数 B；第 k 次失败后等待 D·B^k。
	Multiplier float64
	// MaxDelay: 单次等待上限；0 表示不设上限。
	MaxDelay time.Duration
	// AttemptTimeout: 单次尝试超时；0 表示不设。
	AttemptTimeout time.Duration

	Sleeper Sleeper
	// Admit 在每次尝试前调用（通常为限流闸门）；返回错误即终止，不再重试。
	Admit func(ctx context.Context) error
	// OnRetry 在每次失败且即将等待时回调（attempt 从 1 计）。
	OnRetry func(attempt int, delay time.Duration, err error)
}

// RetryError: 重试耗尽后的终态错误。
// errors.Is(err, contract.ErrRetriesExhausted) 成立，同时保留最后一次错误的链路。
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", contract.ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() []error { return []error{contract.ErrRetriesExhausted, e.Err} }

// Delay 返回第 k 次失败（k 从 0 计）之后的等待时长：D·B^k。
func (e Executor) Delay(k int) time.Duration {
	ceiling := e.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Duration(math.MaxInt64)
	}
	b := &backoff.Backoff{Min: e.BaseDelay, Max: ceiling, Factor: e.Multiplier, Jitter: false}
	return b.ForAttempt(float64(k))
}

// Do 执行 fn，失败时按 D·B^k 退避重试，最多 R+1 次尝试。
// 返回实际尝试次数与终态错误：
//   - 成功：(attempts, nil)
//   - 耗尽：(R+1, *RetryError)，最后一次失败后不再等待
//   - Admit 失败或 ctx 在等待期间取消：(attempts, err)，不包裹为耗尽
func (e Executor) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	if fn == nil {
		return 0, contract.ErrInvalidInput
	}
	sl := e.Sleeper
	if sl == nil {
		sl = ClockSleeper{}
	}
	retries := e.MaxRetries
	if retries < 0 {
		retries = 0
	}
	var last error
	for k := 0; k <= retries; k++ {
		if e.Admit != nil {
			if err := e.Admit(ctx); err != nil {
				return k, xerrors.Errorf("admit attempt %d: %w", k+1, err)
			}
		}
		last = e.attempt(ctx, fn)
		if last == nil {
			return k + 1, nil
		}
		if k == retries {
			break
		}
		d := e.Delay(k)
		if e.OnRetry != nil {
			e.OnRetry(k+1, d, last)
		}
		if err := sl.Sleep(ctx, d); err != nil {
			return k + 1, xerrors.Errorf("backoff after attempt %d (%v): %w", k+1, last, err)
		}
	}
	return retries + 1, &RetryError{Attempts: retries + 1, Err: last}
}

func (e Executor) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, e.AttemptTimeout)
	defer cancel()
	return fn(actx)
}
