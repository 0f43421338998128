package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/pkg/contract"
)

func TestInvokeSystemInstructionAndParts(t *testing.T) {
	var got gmReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"# Ti"},{"text":"tle"}]}}]}`))
	}))
	defer srv.Close()

	c, err := New(&Options{BaseURL: srv.URL, APIKey: "gk"})
	require.NoError(t, err)
	raw, err := c.Invoke(context.Background(), contract.ChatPrompt{
		{Role: "system", Content: "be precise"},
		{Role: "user", Content: "# 标题"},
		{Role: "assistant", Content: "prev"},
	})
	require.NoError(t, err)
	assert.Equal(t, "# Title", raw.Text, "多个 part 应拼接")

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be precise", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 2)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	require.NotNil(t, got.GenerationConfig.Temperature)
}

func TestInvokeHeaderKeyAndErrors(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hk", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()
	off := false
	c, err := New(&Options{BaseURL: srv.URL, APIKey: "hk", APIKeyInQuery: &off})
	require.NoError(t, err)
	p := contract.TextPrompt("x")

	_, err = c.Invoke(context.Background(), p)
	assert.ErrorIs(t, err, contract.ErrResponseInvalid)

	status = http.StatusTooManyRequests
	_, err = c.Invoke(context.Background(), p)
	assert.ErrorIs(t, err, contract.ErrRateLimited)

	status = http.StatusServiceUnavailable
	_, err = c.Invoke(context.Background(), p)
	var ue contract.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, ue.UpstreamStatus())

	status = http.StatusForbidden
	_, err = c.Invoke(context.Background(), p)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = c.Invoke(context.Background(), contract.ChatPrompt{{Role: "system", Content: "only"}})
	assert.ErrorIs(t, err, contract.ErrInvalidInput, "仅有 system 消息时无 contents")
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
