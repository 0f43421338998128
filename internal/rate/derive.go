package rate

import (
	"crypto/sha256"
	"fmt"
	"os"

	"golang.org/x/xerrors"
)

// DeriveKey 从 LLM 客户端标识与其 options 中提取 API Key，
// 并返回按 client+sha256(key) 构造的限流分组键。找不到 key 时返回错误。
// 仅解析常见键名："api_key" 与 "api_key_env"；mock/flaky 客户端若未提供 api_key，则使用内置调试 key。
func DeriveKey(client string, opts map[string]any) (LimitKey, error) {
	pick := func(key string) string {
		if v, ok := opts[key].(string); ok {
			return v
		}
		return ""
	}

	key := pick("api_key")
	if key == "" {
		if env := pick("api_key_env"); env != "" {
			key = os.Getenv(env)
		}
	}
	if key == "" && (client == "mock" || client == "flaky") {
		key = "MOCK_DEBUG_KEY"
	}
	if key == "" {
		return "", xerrors.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:])), nil
}
