package serializer

import (
	"math"

	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// Elem 描述切片元素或可选值的单次编解码，语义与 Serializer 的字段操作一致。
type Elem[T any] func(s Serializer, v T) (T, error)

// Slice 以 2 字节元素个数为前缀编解码切片。
// 写模式下返回 items 本身；读模式下忽略 items，返回新分配的切片。
func Slice[T any](s Serializer, items []T, elem Elem[T]) ([]T, error) {
	if !s.IsLoading() && len(items) > math.MaxUint16 {
		return nil, merr.WrapErrLengthOverflow(len(items), "slice element count")
	}
	n := int(s.Uint16(uint16(len(items))))
	if !s.IsLoading() {
		for i := range items {
			if _, err := elem(s, items[i]); err != nil {
				return nil, err
			}
		}
		return items, nil
	}

	out := make([]T, n)
	for i := range out {
		v, err := elem(s, out[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Optional 以 1 字节存在标记编解码可选值，nil 表示缺省。
func Optional[T any](s Serializer, v *T, elem Elem[T]) (*T, error) {
	if !s.Bool(v != nil) {
		return nil, nil
	}
	var cur T
	if !s.IsLoading() {
		cur = *v
	}
	out, err := elem(s, cur)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Nested 将 v 作为一个带长度前缀的子记录编解码。
// 读模式下即使 v 没有读完整个子记录，游标也会对齐到子记录末尾。
func Nested(s Serializer, v Serializable) error {
	return s.TrackLength(func(int) error {
		return v.Serialize(s)
	})
}

// 以下为常用基础类型的 Elem，便于与 Slice、Optional 组合使用。

func Int8Elem(s Serializer, v int8) (int8, error) { return s.Int8(v), nil }

func Int16Elem(s Serializer, v int16) (int16, error) { return s.Int16(v), nil }

func Int32Elem(s Serializer, v int32) (int32, error) { return s.Int32(v), nil }

func Uint8Elem(s Serializer, v uint8) (uint8, error) { return s.Uint8(v), nil }

func Uint16Elem(s Serializer, v uint16) (uint16, error) { return s.Uint16(v), nil }

func Uint32Elem(s Serializer, v uint32) (uint32, error) { return s.Uint32(v), nil }

func Float32Elem(s Serializer, v float32) (float32, error) { return s.Float32(v), nil }

func Float64Elem(s Serializer, v float64) (float64, error) { return s.Float64(v), nil }

func BoolElem(s Serializer, v bool) (bool, error) { return s.Bool(v), nil }

func StringElem(s Serializer, v string) (string, error) { return s.String(v), nil }

// NestedElem 返回将 T 作为子记录编解码的 Elem。
// newT 用于在读模式下创建空的目标对象。
func NestedElem[T Serializable](newT func() T) Elem[T] {
	return func(s Serializer, v T) (T, error) {
		if s.IsLoading() {
			v = newT()
		}
		if err := Nested(s, v); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	}
}
