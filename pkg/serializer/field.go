package serializer

import (
	"strconv"

	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// FieldType 标识一个字段操作。用于字段布局描述以及 CheckedSerializer 的类型标记。
type FieldType uint8

const (
	FieldInvalid FieldType = iota
	FieldInt8
	FieldInt16
	FieldInt32
	FieldUint8
	FieldUint16
	FieldUint32
	FieldFloat32
	FieldFloat64
	FieldBool
	FieldString
	// FieldFrame 表示一个 TrackLength 帧。
	FieldFrame
)

var fieldNames = [...]string{
	FieldInvalid: "invalid",
	FieldInt8:    "i8",
	FieldInt16:   "i16",
	FieldInt32:   "i32",
	FieldUint8:   "u8",
	FieldUint16:  "u16",
	FieldUint32:  "u32",
	FieldFloat32: "f32",
	FieldFloat64: "f64",
	FieldBool:    "bool",
	FieldString:  "str",
	FieldFrame:   "frame",
}

// String 返回字段类型的短名称，与布局描述中的记号一致。
func (t FieldType) String() string {
	if int(t) < len(fieldNames) {
		return fieldNames[t]
	}
	return "field(" + strconv.Itoa(int(t)) + ")"
}

// Width 返回定长字段在二进制编码中占用的字节数；变长字段返回 0。
func (t FieldType) Width() int {
	switch t {
	case FieldInt8, FieldUint8, FieldBool:
		return 1
	case FieldInt16, FieldUint16:
		return 2
	case FieldInt32, FieldUint32, FieldFloat32:
		return 4
	case FieldFloat64:
		return 8
	default:
		return 0
	}
}

// Apply 以动态类型 t 对 s 执行一次字段操作。
//
// 写模式下 v 被转换为 t 对应的 Go 类型后写入；读模式下忽略 v，返回读取到的值。
// FieldFrame 不是单个字段，调用方应直接使用 TrackLength。
func Apply(s Serializer, t FieldType, v Value) (Value, error) {
	switch t {
	case FieldInt8:
		return apply(s, v, AsInt[int8], s.Int8, IntValue[int8])
	case FieldInt16:
		return apply(s, v, AsInt[int16], s.Int16, IntValue[int16])
	case FieldInt32:
		return apply(s, v, AsInt[int32], s.Int32, IntValue[int32])
	case FieldUint8:
		return apply(s, v, AsUint[uint8], s.Uint8, UintValue[uint8])
	case FieldUint16:
		return apply(s, v, AsUint[uint16], s.Uint16, UintValue[uint16])
	case FieldUint32:
		return apply(s, v, AsUint[uint32], s.Uint32, UintValue[uint32])
	case FieldFloat32:
		return apply(s, v, Value.AsFloat32, s.Float32, Float32Value)
	case FieldFloat64:
		return apply(s, v, Value.AsFloat64, s.Float64, Float64Value)
	case FieldBool:
		return apply(s, v, Value.AsBool, s.Bool, BoolValue)
	case FieldString:
		return apply(s, v, Value.AsString, s.String, StringValue)
	default:
		return Value{}, errFieldNotApplicable(t)
	}
}

func apply[T any](s Serializer, v Value, convert func(Value) (T, error), op func(T) T, wrap func(T) Value) (Value, error) {
	var x T
	if !s.IsLoading() {
		var err error
		if x, err = convert(v); err != nil {
			return Value{}, err
		}
	}
	return wrap(op(x)), nil
}

func errFieldNotApplicable(t FieldType) error {
	return merr.WrapErrOperationNotSupported("apply "+t.String(), "not a single field")
}
