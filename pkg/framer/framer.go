package framer

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/valyala/bytebufferpool"

	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// Framer 抽象了基于长度前缀的记录打包/解包能力。
//
// 约定：
//   - 一帧数据的格式为：4 字节大端无符号整型（表示后续负载的长度）+ 负载字节。
//   - 负载通常是一条 BufferSerializer 编码的记录，Framer 本身不关心其内容。
type Framer interface {
	// WriteFrame 将 payload 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, payload []byte) error

	// ReadFrame 从 r 中读取一帧数据，返回的负载归调用方所有。
	ReadFrame(r io.Reader) ([]byte, error)
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界。
// 适用于文件、管道等基于流的存储介质。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大负载大小，单位字节。
	// 为 0 时使用默认值 DefaultMaxFrameSize。
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

const (
	// DefaultMaxFrameSize 为默认的最大负载大小。
	DefaultMaxFrameSize uint32 = 16 * 1024 * 1024 // 16MB

	headerSize = 4
)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 将 payload 编码为长度前缀帧并写入。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(f.effectiveMaxSize()) {
		metrics.FramerRejectedFrames.WithLabelValues(metrics.OutboundDirection).Inc()
		return merr.WrapErrFrameTooLarge(clampSize(len(payload)), f.effectiveMaxSize())
	}
	length := uint32(len(payload))

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], length)

	if _, err := w.Write(header[:]); err != nil {
		return merr.WrapErrIoFailed("frame header", err)
	}
	if length > 0 {
		if _, err := w.Write(payload); err != nil {
			return merr.WrapErrIoFailed("frame body", err)
		}
	}

	metrics.FramerFrames.WithLabelValues(metrics.OutboundDirection).Inc()
	metrics.FramerBytes.WithLabelValues(metrics.OutboundDirection).Add(float64(length))
	return nil
}

// ReadFrame 从流中读取一帧数据并返回负载的拷贝。
// 流在帧边界处结束时返回 io.EOF；帧内截断返回 ErrIoUnexpectEOF。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) ([]byte, error) {
	var out []byte
	err := f.VisitFrame(r, func(payload []byte) error {
		out = make([]byte, len(payload))
		copy(out, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VisitFrame 读取一帧数据并将负载交给 fn 处理。
// 负载位于池化缓冲区中，仅在 fn 执行期间有效，fn 返回后不得再持有。
func (f *LengthPrefixedFramer) VisitFrame(r io.Reader, fn func(payload []byte) error) error {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return merr.WrapErrIoFailed("frame header", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		metrics.FramerRejectedFrames.WithLabelValues(metrics.InboundDirection).Inc()
		return merr.WrapErrFrameTooLarge(length, f.effectiveMaxSize())
	}

	// 使用 ByteBuffer 池降低频繁 make 带来的分配与 GC 压力。
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	// 确保底层切片容量足够。
	if cap(buf.B) < int(length) {
		buf.B = make([]byte, int(length))
	} else {
		buf.B = buf.B[:int(length)]
	}

	if length > 0 {
		if _, err := io.ReadFull(r, buf.B); err != nil {
			return merr.WrapErrIoFailed("frame body", err)
		}
	}

	metrics.FramerFrames.WithLabelValues(metrics.InboundDirection).Inc()
	metrics.FramerBytes.WithLabelValues(metrics.InboundDirection).Add(float64(length))
	return fn(buf.B)
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}

func clampSize(n int) uint32 {
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
