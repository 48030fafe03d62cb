package framer

import (
	"io"

	"go.uber.org/zap"

	"github.com/lk2023060901/dualser/pkg/log"
)

// Writer 将记录逐帧写入底层流，并记录已写入的帧数。
type Writer struct {
	log.Binder

	framer *LengthPrefixedFramer
	w      io.Writer
	frames int
}

func NewWriter(w io.Writer, framer *LengthPrefixedFramer) *Writer {
	if framer == nil {
		framer = NewLengthPrefixedFramer(0)
	}
	return &Writer{framer: framer, w: w}
}

// Write 写入一帧。
func (w *Writer) Write(payload []byte) error {
	if err := w.framer.WriteFrame(w.w, payload); err != nil {
		w.Logger().Warn("write frame failed", zap.Int("frame", w.frames), zap.Error(err))
		return err
	}
	w.frames++
	w.Logger().RatedDebug(1, "frame written", zap.Int("frame", w.frames), zap.Int("size", len(payload)))
	return nil
}

// Frames 返回成功写入的帧数。
func (w *Writer) Frames() int {
	return w.frames
}

// Reader 从底层流中逐帧读取记录。
type Reader struct {
	log.Binder

	framer *LengthPrefixedFramer
	r      io.Reader
	frames int
}

func NewReader(r io.Reader, framer *LengthPrefixedFramer) *Reader {
	if framer == nil {
		framer = NewLengthPrefixedFramer(0)
	}
	return &Reader{framer: framer, r: r}
}

// Next 读取下一帧并交给 fn 处理，负载仅在 fn 执行期间有效。
// 流正常结束时返回 io.EOF。
func (r *Reader) Next(fn func(payload []byte) error) error {
	err := r.framer.VisitFrame(r.r, fn)
	switch {
	case err == nil:
		r.frames++
		r.Logger().RatedDebug(1, "frame read", zap.Int("frame", r.frames))
	case err == io.EOF:
		r.Logger().Debug("frame stream finished", zap.Int("frames", r.frames))
	default:
		r.Logger().Warn("read frame failed", zap.Int("frame", r.frames), zap.Error(err))
	}
	return err
}

// Frames 返回成功读取的帧数。
func (r *Reader) Frames() int {
	return r.frames
}
