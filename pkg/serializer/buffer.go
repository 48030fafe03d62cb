package serializer

import (
	"encoding/binary"
	"math"

	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// MaxTrackedLength 为 TrackLength 长度前缀（2 字节大端）能表示的最大长度。
const MaxTrackedLength = math.MaxUint16

// fixedWidth 描述一种定长数值的大端编解码方式，每种宽度共享一个实例。
type fixedWidth[T any] struct {
	size   int
	decode func(b []byte) T
	encode func(b []byte, v T)
}

var (
	int8Width = fixedWidth[int8]{
		size:   1,
		decode: func(b []byte) int8 { return int8(b[0]) },
		encode: func(b []byte, v int8) { b[0] = byte(v) },
	}
	int16Width = fixedWidth[int16]{
		size:   2,
		decode: func(b []byte) int16 { return int16(binary.BigEndian.Uint16(b)) },
		encode: func(b []byte, v int16) { binary.BigEndian.PutUint16(b, uint16(v)) },
	}
	int32Width = fixedWidth[int32]{
		size:   4,
		decode: func(b []byte) int32 { return int32(binary.BigEndian.Uint32(b)) },
		encode: func(b []byte, v int32) { binary.BigEndian.PutUint32(b, uint32(v)) },
	}
	uint8Width = fixedWidth[uint8]{
		size:   1,
		decode: func(b []byte) uint8 { return b[0] },
		encode: func(b []byte, v uint8) { b[0] = v },
	}
	uint16Width = fixedWidth[uint16]{
		size:   2,
		decode: binary.BigEndian.Uint16,
		encode: binary.BigEndian.PutUint16,
	}
	uint32Width = fixedWidth[uint32]{
		size:   4,
		decode: binary.BigEndian.Uint32,
		encode: binary.BigEndian.PutUint32,
	}
	float32Width = fixedWidth[float32]{
		size:   4,
		decode: func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) },
		encode: func(b []byte, v float32) { binary.BigEndian.PutUint32(b, math.Float32bits(v)) },
	}
	float64Width = fixedWidth[float64]{
		size:   8,
		decode: func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) },
		encode: func(b []byte, v float64) { binary.BigEndian.PutUint64(b, math.Float64bits(v)) },
	}
)

// BufferSerializer 基于一段定长字节区域实现 Serializer，所有数值按大端序编码。
//
// 写模式下区域为构造时分配的暂存空间；读模式下区域借用自调用方，
// 解码期间调用方不得修改该区域。越界访问会直接 panic。
type BufferSerializer struct {
	buf     []byte
	offset  int
	version int
	loading bool
	text    TextCodec
}

var _ Serializer = (*BufferSerializer)(nil)

// Option 用于配置 BufferSerializer。
type Option func(s *BufferSerializer)

// WithTextCodec 替换 String 字段使用的文本编解码器。
func WithTextCodec(codec TextCodec) Option {
	return func(s *BufferSerializer) {
		if codec != nil {
			s.text = codec
		}
	}
}

// NewBufferWriter 创建一个写模式的 BufferSerializer，暂存区容量为 size 字节。
func NewBufferWriter(version, size int, opts ...Option) *BufferSerializer {
	return newBufferSerializer(version, make([]byte, size), 0, false, opts)
}

// NewBufferReader 创建一个读模式的 BufferSerializer，从 data[offset:] 开始解码。
// data 在解码期间被借用，不会被拷贝。
func NewBufferReader(version int, data []byte, offset int, opts ...Option) *BufferSerializer {
	return newBufferSerializer(version, data, offset, true, opts)
}

func newBufferSerializer(version int, region []byte, offset int, loading bool, opts []Option) *BufferSerializer {
	s := &BufferSerializer{
		// 截断容量，使越界检查以 len 为准而不是底层数组的 cap。
		buf:     region[:len(region):len(region)],
		offset:  offset,
		version: version,
		loading: loading,
		text:    UTF8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BufferSerializer) Version() int {
	return s.version
}

func (s *BufferSerializer) IsLoading() bool {
	return s.loading
}

func (s *BufferSerializer) Position() int {
	return s.offset
}

// Len 返回已写入或已读取的字节数，即当前游标位置。
func (s *BufferSerializer) Len() int {
	return s.offset
}

// Cap 返回字节区域的总长度。
func (s *BufferSerializer) Cap() int {
	return len(s.buf)
}

// Remaining 返回游标之后剩余的字节数。
func (s *BufferSerializer) Remaining() int {
	return len(s.buf) - s.offset
}

// Bytes 返回区域中 [0, Position) 的部分。
// 返回值与内部区域共享内存，需要长期持有时请自行拷贝。
func (s *BufferSerializer) Bytes() []byte {
	return s.buf[:s.offset]
}

func (s *BufferSerializer) End() {
	s.loading = true
}

func (s *BufferSerializer) Mark() Rewind {
	marker := s.offset
	return func() {
		s.offset = marker
	}
}

// fixed 是所有定长字段共用的读写分派逻辑。
func fixed[T any](s *BufferSerializer, w fixedWidth[T], v T) T {
	end := s.offset + w.size
	if s.loading {
		v = w.decode(s.buf[s.offset:end])
	} else {
		w.encode(s.buf[s.offset:end], v)
	}
	s.offset = end
	return v
}

func (s *BufferSerializer) Int8(v int8) int8 { return fixed(s, int8Width, v) }

func (s *BufferSerializer) Int16(v int16) int16 { return fixed(s, int16Width, v) }

func (s *BufferSerializer) Int32(v int32) int32 { return fixed(s, int32Width, v) }

func (s *BufferSerializer) Uint8(v uint8) uint8 { return fixed(s, uint8Width, v) }

func (s *BufferSerializer) Uint16(v uint16) uint16 { return fixed(s, uint16Width, v) }

func (s *BufferSerializer) Uint32(v uint32) uint32 { return fixed(s, uint32Width, v) }

func (s *BufferSerializer) Float32(v float32) float32 { return fixed(s, float32Width, v) }

func (s *BufferSerializer) Float64(v float64) float64 { return fixed(s, float64Width, v) }

// Bool 以单字节编码，写入 0 或 1；读取时任何非零字节都视为 true。
func (s *BufferSerializer) Bool(v bool) bool {
	var b uint8
	if v {
		b = 1
	}
	return fixed(s, uint8Width, b) != 0
}

// String 以 2 字节长度前缀加文本字节的形式编码字符串。
//
// 编码后超过 MaxTrackedLength 的字符串无法表示，此时以 ErrLengthOverflow panic。
func (s *BufferSerializer) String(v string) string {
	out, err := Track(s, func(length int) (string, error) {
		if s.loading {
			text := s.text.Decode(s.buf, s.offset, length)
			s.offset += length
			return text, nil
		}
		s.offset += s.text.Encode(s.buf[s.offset:], v)
		return v, nil
	})
	if err != nil {
		panic(err)
	}
	return out
}

// TrackLength 实现长度前缀帧。
//
// 写模式：先写入 2 字节占位，执行 body 后回填实际长度；
// 读模式：读出长度交给 body，body 结束后游标对齐到帧尾，未读取的剩余字节被跳过。
func (s *BufferSerializer) TrackLength(body func(length int) error) error {
	mark := s.offset
	length := int(s.Uint16(0))
	lengthMarker := s.offset

	rollback := func() {
		s.offset = mark
		metrics.SerializerFramingRollbacks.WithLabelValues(metrics.BufferKind, modeName(s.loading)).Inc()
	}

	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				rollback()
				panic(r)
			}
		}()
		return body(length)
	}(); err != nil {
		rollback()
		return err
	}

	if !s.loading {
		length = s.offset - lengthMarker
		if length < 0 || length > MaxTrackedLength {
			rollback()
			return merr.WrapErrLengthOverflow(length)
		}
		s.offset = mark
		s.Uint16(uint16(length))
	}
	s.offset = lengthMarker + length
	return nil
}
