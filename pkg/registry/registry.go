package registry

import (
	"bytes"
	"encoding/json"

	"doctrans/pkg/contract"
	lfs "doctrans/plugins/fs/local"
	flaky "doctrans/plugins/llmclient/flaky"
	gmi "doctrans/plugins/llmclient/gemini"
	mock "doctrans/plugins/llmclient/mock"
	oai "doctrans/plugins/llmclient/openai"
	ppt "doctrans/plugins/prompt/translate"
	vgit "doctrans/plugins/vcs/git"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewFileSystem 工厂签名：接收原样 JSON Options。
type NewFileSystem func(raw json.RawMessage) (contract.FileSystem, error)

// NewChangeLister 工厂签名：接收原样 JSON Options。
type NewChangeLister func(raw json.RawMessage) (contract.ChangeLister, error)

// PromptBuilder 工厂注册表（显式、零反射）。
var PromptBuilder = map[string]NewPromptBuilder{
	// translate: 保留 Markdown 结构的整篇翻译 PromptBuilder（Chat）
	"translate": func(raw json.RawMessage) (contract.PromptBuilder, error) {
		var opts ppt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ppt.New(&opts)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": func(raw json.RawMessage) (contract.LLMClient, error) {
		var opts oai.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return oai.New(&opts)
	},
	"gemini": func(raw json.RawMessage) (contract.LLMClient, error) {
		var opts gmi.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return gmi.New(&opts)
	},
	// mock: 前缀回显，无网络
	"mock": func(raw json.RawMessage) (contract.LLMClient, error) {
		var opts mock.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mock.New(&opts)
	},
	// flaky: 前 N 次失败，用于演练重试
	"flaky": func(raw json.RawMessage) (contract.LLMClient, error) {
		var opts flaky.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return flaky.New(&opts)
	},
}

// FileSystem 工厂注册表。
var FileSystem = map[string]NewFileSystem{
	// local: 本地文件系统（原子替换可配置）
	"local": func(raw json.RawMessage) (contract.FileSystem, error) {
		var opts lfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lfs.New(&opts)
	},
}

// ChangeLister 工厂注册表。
var ChangeLister = map[string]NewChangeLister{
	"git": func(raw json.RawMessage) (contract.ChangeLister, error) {
		var opts vgit.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return vgit.New(&opts), nil
	},
}
