package serializer

import (
	"github.com/lk2023060901/dualser/pkg/metrics"
)

// ArraySerializer 将字段序列映射为一个 Value 切片，便于与 JSON 等文本格式互转。
//
// 写模式下每个字段追加一个元素；读模式下按下标顺序取出元素并转换为目标类型，
// 类型不可转换时以 ErrValueKind panic，读到末尾之后继续读取会触发越界 panic。
// TrackLength 不产生任何元素，body 收到的长度恒为 0。
type ArraySerializer struct {
	source  []Value
	offset  int
	version int
	loading bool
}

var _ Serializer = (*ArraySerializer)(nil)

// NewArrayWriter 创建一个写模式的 ArraySerializer。
func NewArrayWriter(version int) *ArraySerializer {
	return &ArraySerializer{version: version}
}

// NewArrayReader 创建一个读模式的 ArraySerializer，从 values[0] 开始读取。
func NewArrayReader(version int, values []Value) *ArraySerializer {
	return &ArraySerializer{source: values, version: version, loading: true}
}

func (a *ArraySerializer) Version() int {
	return a.version
}

func (a *ArraySerializer) IsLoading() bool {
	return a.loading
}

func (a *ArraySerializer) Position() int {
	return a.offset
}

// Len 返回当前存储的元素个数。
func (a *ArraySerializer) Len() int {
	return len(a.source)
}

// Values 返回当前存储的元素序列，与内部存储共享底层数组。
func (a *ArraySerializer) Values() []Value {
	return a.source
}

// Reset 清空存储并回到写模式的初始状态。
// 之前通过 Values 取得的切片不受影响。
func (a *ArraySerializer) Reset() {
	a.source = nil
	a.offset = 0
	a.loading = false
}

// Load 替换存储为 values 并切换到读模式，游标回到起点。
func (a *ArraySerializer) Load(values []Value) {
	a.source = values
	a.offset = 0
	a.loading = true
}

func (a *ArraySerializer) End() {
	a.loading = true
}

func (a *ArraySerializer) Mark() Rewind {
	marker := a.offset
	return func() {
		a.restore(marker)
	}
}

// restore 将游标恢复到 marker；写模式下同时丢弃 marker 之后追加的元素。
// 截断时同时限制容量，后续追加会重新分配，不会改写之前 Values 返回的切片。
func (a *ArraySerializer) restore(marker int) {
	a.offset = marker
	if !a.loading && len(a.source) > marker {
		a.source = a.source[:marker:marker]
	}
}

// element 是所有字段共用的读写分派逻辑。
func element[T any](a *ArraySerializer, v T, wrap func(T) Value, convert func(Value) (T, error)) T {
	if a.loading {
		v = mustConvert(a.source[a.offset], convert)
		a.offset++
		return v
	}
	a.source = append(a.source[:a.offset], wrap(v))
	a.offset++
	return v
}

func (a *ArraySerializer) Int8(v int8) int8 {
	return element(a, v, IntValue[int8], AsInt[int8])
}

func (a *ArraySerializer) Int16(v int16) int16 {
	return element(a, v, IntValue[int16], AsInt[int16])
}

func (a *ArraySerializer) Int32(v int32) int32 {
	return element(a, v, IntValue[int32], AsInt[int32])
}

func (a *ArraySerializer) Uint8(v uint8) uint8 {
	return element(a, v, UintValue[uint8], AsUint[uint8])
}

func (a *ArraySerializer) Uint16(v uint16) uint16 {
	return element(a, v, UintValue[uint16], AsUint[uint16])
}

func (a *ArraySerializer) Uint32(v uint32) uint32 {
	return element(a, v, UintValue[uint32], AsUint[uint32])
}

func (a *ArraySerializer) Float32(v float32) float32 {
	return element(a, v, Float32Value, Value.AsFloat32)
}

func (a *ArraySerializer) Float64(v float64) float64 {
	return element(a, v, Float64Value, Value.AsFloat64)
}

func (a *ArraySerializer) Bool(v bool) bool {
	return element(a, v, BoolValue, Value.AsBool)
}

func (a *ArraySerializer) String(v string) string {
	return element(a, v, StringValue, Value.AsString)
}

// TrackLength 直接执行 body，不写入也不读取长度。
// body 失败或 panic 时游标恢复，写模式下丢弃 body 追加的元素。
func (a *ArraySerializer) TrackLength(body func(length int) error) error {
	mark := a.offset
	rollback := func() {
		a.restore(mark)
		metrics.SerializerFramingRollbacks.WithLabelValues(metrics.ArrayKind, modeName(a.loading)).Inc()
	}

	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				rollback()
				panic(r)
			}
		}()
		return body(0)
	}(); err != nil {
		rollback()
		return err
	}
	return nil
}
