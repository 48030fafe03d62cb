package serializer

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lk2023060901/dualser/internal/json"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// ValueCodec 抽象了 Value 序列与外部交换格式之间的编解码能力。
//
// 设计目标：
//   - ArraySerializer 产出的元素序列可以用 JSON、CBOR、MessagePack 或 Protobuf 表示。
//   - 调用方通过接口注入具体实现，便于后续扩展其它交换格式。
type ValueCodec interface {
	// Marshal 将元素序列编码为字节序列。
	Marshal(values []Value) ([]byte, error)

	// Unmarshal 将字节序列解码为元素序列。
	Unmarshal(data []byte) ([]Value, error)
}

// Format 为交换格式名称，用于配置与命令行参数。
type Format string

const (
	FormatJSON    Format = "json"
	FormatCBOR    Format = "cbor"
	FormatMsgPack Format = "msgpack"
	FormatProto   Format = "proto"
)

// CodecFor 根据格式名称返回对应的 ValueCodec，名称不区分大小写。
func CodecFor(format Format) (ValueCodec, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatJSON, "":
		return JSONCodec{}, nil
	case FormatCBOR:
		return CBORCodec{}, nil
	case FormatMsgPack, "msgp":
		return MsgPackCodec{}, nil
	case FormatProto, "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown interchange format %q", format)
	}
}

func toNative(values []Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Interface()
	}
	return out
}

func fromNative(raw []any) ([]Value, error) {
	out := make([]Value, len(raw))
	for i, x := range raw {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// JSONCodec 使用 internal/json（基于 bytedance/sonic）实现 JSON 数组编解码。
// 解码时数字保留为 json.Number，整数不会经过 float64 丢失精度。
type JSONCodec struct{}

// 编译期断言：确保 JSONCodec 实现了 ValueCodec 接口。
var _ ValueCodec = JSONCodec{}

func (JSONCodec) Marshal(values []Value) ([]byte, error) {
	return json.Marshal(toNative(values))
}

func (JSONCodec) Unmarshal(data []byte) ([]Value, error) {
	var raw []any
	if err := json.UnmarshalUseNumber(data, &raw); err != nil {
		return nil, err
	}
	return fromNative(raw)
}

// CBORCodec 使用 fxamacker/cbor 实现 CBOR 数组编解码。
type CBORCodec struct{}

var _ ValueCodec = CBORCodec{}

func (CBORCodec) Marshal(values []Value) ([]byte, error) {
	return cbor.Marshal(toNative(values))
}

func (CBORCodec) Unmarshal(data []byte) ([]Value, error) {
	var raw []any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromNative(raw)
}

// MsgPackCodec 使用 vmihailenco/msgpack 实现 MessagePack 数组编解码。
type MsgPackCodec struct{}

var _ ValueCodec = MsgPackCodec{}

func (MsgPackCodec) Marshal(values []Value) ([]byte, error) {
	return msgpack.Marshal(toNative(values))
}

func (MsgPackCodec) Unmarshal(data []byte) ([]Value, error) {
	var raw []any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromNative(raw)
}

// ProtoCodec 将元素序列表示为 google.protobuf.ListValue 后进行二进制序列化。
//
// 注意：ListValue 中的数字统一为 double，超过 2^53 的整数会丢失精度。
type ProtoCodec struct{}

var _ ValueCodec = ProtoCodec{}

func (ProtoCodec) Marshal(values []Value) ([]byte, error) {
	list, err := structpb.NewList(toNative(values))
	if err != nil {
		return nil, err
	}
	return proto.Marshal(list)
}

func (ProtoCodec) Unmarshal(data []byte) ([]Value, error) {
	list := &structpb.ListValue{}
	if err := proto.Unmarshal(data, list); err != nil {
		return nil, err
	}
	return fromNative(list.AsSlice())
}

// MarshalJSON 让 ArraySerializer 的存储直接以 JSON 数组形式输出。
func (a *ArraySerializer) MarshalJSON() ([]byte, error) {
	return JSONCodec{}.Marshal(a.source)
}

// UnmarshalJSON 从 JSON 数组加载元素并切换到读模式。
func (a *ArraySerializer) UnmarshalJSON(data []byte) error {
	values, err := JSONCodec{}.Unmarshal(data)
	if err != nil {
		return err
	}
	a.Load(values)
	return nil
}

// JSON 返回存储的 JSON 文本，编码失败时返回空数组。
func (a *ArraySerializer) JSON() string {
	data, err := a.MarshalJSON()
	if err != nil {
		return "[]"
	}
	return string(data)
}

// MarshalJSON 使单个 Value 可以直接嵌入其他 JSON 结构。
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.UnmarshalUseNumber(data, &raw); err != nil {
		return err
	}
	out, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}
