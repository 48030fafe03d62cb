package serializer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// Kind 标识 Value 中实际承载的数据类型。
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindUint
	KindFloat32
	KindFloat64
	KindBool
	KindString
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindInt:     "int",
	KindUint:    "uint",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindBool:    "bool",
	KindString:  "string",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value 是 ArraySerializer 存储的单个元素，可承载整数、浮点、布尔或字符串。
//
// 读取时按目标字段类型做宽松转换：整数之间按范围检查转换，
// 整数值的浮点数可转为整数，数字与布尔之间按零/非零转换。
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	b    bool
	s    string
}

func IntValue[T constraints.Signed](v T) Value {
	return Value{kind: KindInt, i: int64(v)}
}

func UintValue[T constraints.Unsigned](v T) Value {
	return Value{kind: KindUint, u: uint64(v)}
}

func Float32Value(v float32) Value {
	return Value{kind: KindFloat32, f: float64(v)}
}

func Float64Value(v float64) Value {
	return Value{kind: KindFloat64, f: v}
}

func BoolValue(v bool) Value {
	return Value{kind: KindBool, b: v}
}

func StringValue(v string) Value {
	return Value{kind: KindString, s: v}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

// Interface 返回 Value 对应的 Go 原生值，KindInvalid 返回 nil。
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat32:
		return float32(v.f)
	case KindFloat64:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindInvalid:
		return "<invalid>"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// ValueOf 将解码得到的原生值转换为 Value。
// 支持各宽度整数、浮点、布尔、字符串以及 json.Number。
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case int:
		return IntValue(t), nil
	case int8:
		return IntValue(t), nil
	case int16:
		return IntValue(t), nil
	case int32:
		return IntValue(t), nil
	case int64:
		return IntValue(t), nil
	case uint:
		return UintValue(t), nil
	case uint8:
		return UintValue(t), nil
	case uint16:
		return UintValue(t), nil
	case uint32:
		return UintValue(t), nil
	case uint64:
		return UintValue(t), nil
	case float32:
		return Float32Value(t), nil
	case float64:
		return Float64Value(t), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return numberValue(string(t))
	default:
		return Value{}, merr.WrapErrValueKind(fmt.Sprintf("%T", x), "value")
	}
}

func numberValue(text string) (Value, error) {
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return IntValue(i), nil
		}
		if u, err := strconv.ParseUint(text, 10, 64); err == nil {
			return UintValue(u), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, merr.WrapErrValueKind(text, KindFloat64, err.Error())
	}
	return Float64Value(f), nil
}

// AsInt 将 v 转换为有符号整数 T，超出 T 的表示范围时返回 ErrValueKind。
func AsInt[T constraints.Signed](v Value) (T, error) {
	var out T
	switch v.kind {
	case KindInt:
		out = T(v.i)
		if int64(out) != v.i {
			return 0, overflow[T](v)
		}
	case KindUint:
		out = T(v.u)
		if out < 0 || uint64(out) != v.u {
			return 0, overflow[T](v)
		}
	case KindFloat32, KindFloat64:
		if v.f != math.Trunc(v.f) || math.IsInf(v.f, 0) {
			return 0, overflow[T](v)
		}
		out = T(v.f)
		if float64(out) != v.f {
			return 0, overflow[T](v)
		}
	case KindBool:
		if v.b {
			out = 1
		}
	default:
		return 0, merr.WrapErrValueKind(v.kind, fmt.Sprintf("%T", out))
	}
	return out, nil
}

// AsUint 将 v 转换为无符号整数 T，负数或超出范围时返回 ErrValueKind。
func AsUint[T constraints.Unsigned](v Value) (T, error) {
	var out T
	switch v.kind {
	case KindInt:
		out = T(v.i)
		if v.i < 0 || uint64(out) != uint64(v.i) {
			return 0, overflow[T](v)
		}
	case KindUint:
		out = T(v.u)
		if uint64(out) != v.u {
			return 0, overflow[T](v)
		}
	case KindFloat32, KindFloat64:
		if v.f < 0 || v.f != math.Trunc(v.f) || math.IsInf(v.f, 0) {
			return 0, overflow[T](v)
		}
		out = T(v.f)
		if float64(out) != v.f {
			return 0, overflow[T](v)
		}
	case KindBool:
		if v.b {
			out = 1
		}
	default:
		return 0, merr.WrapErrValueKind(v.kind, fmt.Sprintf("%T", out))
	}
	return out, nil
}

func overflow[T constraints.Integer](v Value) error {
	var zero T
	return merr.WrapErrValueKind(v, fmt.Sprintf("%T", zero), "out of range")
}

func (v Value) AsFloat64() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindUint:
		return float64(v.u), nil
	case KindFloat32, KindFloat64:
		return v.f, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, merr.WrapErrValueKind(v.kind, KindFloat64)
	}
}

// AsFloat32 拒绝超出 float32 表示范围的有限值，±Inf 与 NaN 原样转换。
func (v Value) AsFloat32() (float32, error) {
	f, err := v.AsFloat64()
	if err != nil {
		return 0, merr.WrapErrValueKind(v.kind, KindFloat32)
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, merr.WrapErrValueKind(v, KindFloat32, "out of range")
	}
	return float32(f), nil
}

func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i != 0, nil
	case KindUint:
		return v.u != 0, nil
	case KindFloat32, KindFloat64:
		return v.f != 0, nil
	default:
		return false, merr.WrapErrValueKind(v.kind, KindBool)
	}
}

// AsString 只接受字符串类型的 Value，不做数字到文本的转换。
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", merr.WrapErrValueKind(v.kind, KindString)
	}
	return v.s, nil
}

// mustConvert 在转换失败时 panic，用于 ArraySerializer 的字段读取。
func mustConvert[T any](v Value, convert func(Value) (T, error)) T {
	out, err := convert(v)
	if err != nil {
		panic(err)
	}
	return out
}
