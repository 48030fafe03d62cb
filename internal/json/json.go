// Package json 统一封装 JSON 编解码，底层使用 bytedance/sonic。
package json

import (
	"github.com/bytedance/sonic"
)

var (
	api = sonic.ConfigStd
	// numberAPI 解码到 any 时把数字保留为 json.Number，避免大整数经 float64 丢失精度。
	numberAPI = sonic.Config{
		EscapeHTML:       true,
		SortMapKeys:      true,
		CompactMarshaler: true,
		CopyString:       true,
		ValidateString:   true,
		UseNumber:        true,
	}.Froze()

	Marshal            = api.Marshal
	MarshalIndent      = api.MarshalIndent
	Unmarshal          = api.Unmarshal
	UnmarshalUseNumber = numberAPI.Unmarshal
	NewEncoder         = api.NewEncoder
	NewDecoder         = api.NewDecoder
	Valid              = api.Valid
)
