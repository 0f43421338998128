package config

import (
	"context"
	"testing"
)

// testContext 等价于 Go 1.24 的 t.Context：返回在测试结束前取消的 context。
func testContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
