package registry

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	require.NoError(t, strictUnmarshal(nil, &o))
	assert.Equal(t, 0, o.A)
	require.NoError(t, strictUnmarshal(json.RawMessage(`{"a":1}`), &o))
	assert.Equal(t, 1, o.A)
	assert.Error(t, strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o), "未知字段应报错")
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("prompt", func(t *testing.T) {
		_, err := PromptBuilder["translate"](json.RawMessage(`{}`))
		require.NoError(t, err)
		_, err = PromptBuilder["translate"](json.RawMessage(`{"x":1}`))
		assert.Error(t, err, "prompt 未对未知字段报错")
	})
	t.Run("fs", func(t *testing.T) {
		raw := json.RawMessage(fmt.Sprintf(`{"root":%q}`, t.TempDir()))
		_, err := FileSystem["local"](raw)
		require.NoError(t, err)
		_, err = FileSystem["local"](json.RawMessage(`{}`))
		assert.ErrorIs(t, err, contract.ErrInvalidInput)
		_, err = FileSystem["local"](json.RawMessage(`{"root":"/tmp","x":1}`))
		assert.Error(t, err, "fs 未对未知字段报错")
	})
	t.Run("vcs", func(t *testing.T) {
		_, err := ChangeLister["git"](json.RawMessage(`{"dir":"."}`))
		require.NoError(t, err)
		_, err = ChangeLister["git"](json.RawMessage(`{"x":1}`))
		assert.Error(t, err)
	})
	t.Run("llm-mock", func(t *testing.T) {
		_, err := LLMClient["mock"](json.RawMessage(`{}`))
		require.NoError(t, err)
		_, err = LLMClient["flaky"](json.RawMessage(`{"fail_first":1}`))
		require.NoError(t, err)
		_, err = LLMClient["mock"](json.RawMessage(`{"nope":true}`))
		assert.Error(t, err)
	})
	t.Run("llm-openai", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := LLMClient["openai"](json.RawMessage(`{}`))
		assert.ErrorIs(t, err, contract.ErrInvalidInput)
		_, err = LLMClient["openai"](json.RawMessage(`{"api_key":"k"}`))
		assert.NoError(t, err)
	})
	t.Run("llm-gemini", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		_, err := LLMClient["gemini"](json.RawMessage(`{}`))
		assert.ErrorIs(t, err, contract.ErrInvalidInput)
	})
}
