package serializer

import (
	"runtime"
	"strings"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// Safely 执行 fn，并将字段操作的 panic 转换为错误返回。
//
//   - 越界类运行时错误：写模式下转换为 ErrBufferOverrun，读模式下转换为 ErrShortRead。
//   - 以 error 作为 panic 值（例如 ErrLengthOverflow、ErrValueKind）：原样返回。
//   - 其他 panic 继续向上抛出。
func Safely(s Serializer, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = recoveredError(s, r)
	}()
	return fn()
}

func recoveredError(s Serializer, r any) error {
	loading := s.IsLoading()
	mode := modeName(loading)

	limit := -1
	if sized, ok := s.(interface{ Cap() int }); ok {
		limit = sized.Cap()
	} else if arr, ok := s.(*ArraySerializer); ok {
		limit = arr.Len()
	}

	switch e := r.(type) {
	case runtime.Error:
		if !strings.Contains(e.Error(), "out of range") {
			panic(r)
		}
		log.RatedWarn(1, "serializer recovered from out of range access",
			log.FieldMode(loading),
			log.FieldPosition(s.Position()),
			zap.Int("limit", limit),
			zap.String("panic", e.Error()))
		if loading {
			metrics.SerializerRecoveredPanics.WithLabelValues(mode, "short_read").Inc()
			return merr.WrapErrShortRead(s.Position(), limit, e.Error())
		}
		metrics.SerializerRecoveredPanics.WithLabelValues(mode, "overrun").Inc()
		return merr.WrapErrBufferOverrun(s.Position(), limit, e.Error())
	case error:
		metrics.SerializerRecoveredPanics.WithLabelValues(mode, "error").Inc()
		return e
	default:
		panic(r)
	}
}

// MaxScratchSize 为 Marshal 允许的暂存区上限。
const MaxScratchSize = 64 << 20

// Marshal 使用容量为 size 的暂存区编码 v，返回的字节切片归调用方所有。
// 暂存区取自 bytebufferpool，编码完成后归还。
func Marshal(version, size int, v Serializable, opts ...Option) ([]byte, error) {
	if size < 0 || size > MaxScratchSize {
		return nil, merr.WrapErrParameterInvalidRange(0, MaxScratchSize, size, "scratch size")
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if cap(bb.B) < size {
		bb.B = make([]byte, size)
	}
	s := newBufferSerializer(version, bb.B[:size], 0, false, opts)

	if err := Safely(s, func() error { return v.Serialize(s) }); err != nil {
		return nil, err
	}

	out := make([]byte, s.Position())
	copy(out, s.Bytes())
	metrics.SerializerProcessedUnits.WithLabelValues(metrics.BufferKind, modeName(false)).Add(float64(len(out)))
	metrics.SerializerRecordSize.WithLabelValues(modeName(false)).Observe(float64(len(out)))
	return out, nil
}

// Unmarshal 从 data 起始位置解码 v。
func Unmarshal(version int, data []byte, v Serializable, opts ...Option) error {
	_, err := UnmarshalFrom(version, data, 0, v, opts...)
	return err
}

// UnmarshalFrom 从 data[offset:] 解码 v，返回解码结束后的位置。
// 解码期间 data 被借用，不会被修改或拷贝。
func UnmarshalFrom(version int, data []byte, offset int, v Serializable, opts ...Option) (int, error) {
	if offset < 0 || offset > len(data) {
		return offset, merr.WrapErrParameterInvalidRange(0, len(data), offset, "offset")
	}
	s := NewBufferReader(version, data, offset, opts...)
	if err := Safely(s, func() error { return v.Serialize(s) }); err != nil {
		return offset, err
	}
	consumed := s.Position() - offset
	metrics.SerializerProcessedUnits.WithLabelValues(metrics.BufferKind, modeName(true)).Add(float64(consumed))
	metrics.SerializerRecordSize.WithLabelValues(modeName(true)).Observe(float64(consumed))
	return s.Position(), nil
}

// MarshalValues 将 v 编码为 Value 序列。
func MarshalValues(version int, v Serializable) ([]Value, error) {
	a := NewArrayWriter(version)
	if err := Safely(a, func() error { return v.Serialize(a) }); err != nil {
		return nil, err
	}
	metrics.SerializerProcessedUnits.WithLabelValues(metrics.ArrayKind, modeName(false)).Add(float64(a.Len()))
	return a.Values(), nil
}

// UnmarshalValues 从 Value 序列解码 v。
func UnmarshalValues(version int, values []Value, v Serializable) error {
	a := NewArrayReader(version, values)
	if err := Safely(a, func() error { return v.Serialize(a) }); err != nil {
		return err
	}
	metrics.SerializerProcessedUnits.WithLabelValues(metrics.ArrayKind, modeName(true)).Add(float64(a.Position()))
	return nil
}
