package serializer

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// CheckedSerializer 在每个字段前额外写入 1 字节的 FieldType 标记，
// 读取时校验标记与调用的字段操作是否一致，用于调试读写两端字段顺序不一致的问题。
//
// 带标记的数据与普通编码不兼容，读写两端必须同时使用 CheckedSerializer。
// 首次检测到不一致后错误被记录在 Err 中，之后的读取操作全部返回传入值，不再访问底层数据。
type CheckedSerializer struct {
	log.Binder

	inner Serializer
	err   error
}

var _ Serializer = (*CheckedSerializer)(nil)

// NewChecked 使用 inner 作为底层存储创建 CheckedSerializer。
func NewChecked(inner Serializer) *CheckedSerializer {
	return &CheckedSerializer{inner: inner}
}

// Err 返回首次检测到的字段类型不一致错误。
func (c *CheckedSerializer) Err() error {
	return c.err
}

// Inner 返回底层 Serializer。
func (c *CheckedSerializer) Inner() Serializer {
	return c.inner
}

func (c *CheckedSerializer) Version() int {
	return c.inner.Version()
}

func (c *CheckedSerializer) IsLoading() bool {
	return c.inner.IsLoading()
}

func (c *CheckedSerializer) Position() int {
	return c.inner.Position()
}

func (c *CheckedSerializer) Mark() Rewind {
	return c.inner.Mark()
}

func (c *CheckedSerializer) End() {
	c.inner.End()
}

// expect 写入或校验字段标记，返回 false 表示应跳过本次字段操作。
func (c *CheckedSerializer) expect(t FieldType) bool {
	if c.err != nil {
		return false
	}
	pos := c.inner.Position()
	got := FieldType(c.inner.Uint8(uint8(t)))
	if !c.inner.IsLoading() || got == t {
		return true
	}

	c.err = merr.WrapErrFieldTypeMismatch(pos, t, got)
	metrics.SerializerFieldMismatches.Inc()
	c.Logger().RatedWarn(1, "serializer field type mismatch",
		log.FieldPosition(pos),
		log.FieldVersion(c.inner.Version()),
		zap.Stringer("expected", t),
		zap.Stringer("actual", got))
	return false
}

func checked[T any](c *CheckedSerializer, t FieldType, v T, op func(T) T) T {
	if !c.expect(t) {
		return v
	}
	return op(v)
}

func (c *CheckedSerializer) Int8(v int8) int8 { return checked(c, FieldInt8, v, c.inner.Int8) }

func (c *CheckedSerializer) Int16(v int16) int16 { return checked(c, FieldInt16, v, c.inner.Int16) }

func (c *CheckedSerializer) Int32(v int32) int32 { return checked(c, FieldInt32, v, c.inner.Int32) }

func (c *CheckedSerializer) Uint8(v uint8) uint8 { return checked(c, FieldUint8, v, c.inner.Uint8) }

func (c *CheckedSerializer) Uint16(v uint16) uint16 {
	return checked(c, FieldUint16, v, c.inner.Uint16)
}

func (c *CheckedSerializer) Uint32(v uint32) uint32 {
	return checked(c, FieldUint32, v, c.inner.Uint32)
}

func (c *CheckedSerializer) Float32(v float32) float32 {
	return checked(c, FieldFloat32, v, c.inner.Float32)
}

func (c *CheckedSerializer) Float64(v float64) float64 {
	return checked(c, FieldFloat64, v, c.inner.Float64)
}

func (c *CheckedSerializer) Bool(v bool) bool { return checked(c, FieldBool, v, c.inner.Bool) }

func (c *CheckedSerializer) String(v string) string {
	return checked(c, FieldString, v, c.inner.String)
}

// TrackLength 在帧前写入 FieldFrame 标记。帧内检测到不一致时帧整体回滚并返回该错误。
func (c *CheckedSerializer) TrackLength(body func(length int) error) error {
	if !c.expect(FieldFrame) {
		return c.err
	}
	return c.inner.TrackLength(func(length int) error {
		if err := body(length); err != nil {
			return err
		}
		return c.err
	})
}
