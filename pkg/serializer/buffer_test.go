package serializer

import (
	"math"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// greeting 对应 {u16 id, str text, bool flag} 这一最小记录。
type greeting struct {
	ID   uint16
	Text string
	Flag bool
}

func (g *greeting) Serialize(s Serializer) error {
	g.ID = s.Uint16(g.ID)
	g.Text = s.String(g.Text)
	g.Flag = s.Bool(g.Flag)
	return nil
}

func TestBufferEndToEndExample(t *testing.T) {
	w := NewBufferWriter(3, 64)
	in := &greeting{ID: 10, Text: "hello", Flag: true}
	require.NoError(t, in.Serialize(w))

	expected := []byte{0x00, 0x0A, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o', 0x01}
	assert.Equal(t, expected, w.Bytes())
	assert.Equal(t, 10, w.Position())
	assert.Equal(t, 10, w.Len())
	assert.Equal(t, 64, w.Cap())

	r := NewBufferReader(3, w.Bytes(), 0)
	assert.Equal(t, 3, r.Version())
	out := &greeting{}
	require.NoError(t, out.Serialize(r))
	assert.Equal(t, in, out)
	assert.Equal(t, 10, r.Position())
	assert.Equal(t, 0, r.Remaining())
}

func TestBufferPrimitiveRoundTrip(t *testing.T) {
	w := NewBufferWriter(3, 128)
	assert.False(t, w.IsLoading())
	assert.Equal(t, 3, w.Version())

	assert.Equal(t, int8(-128), w.Int8(math.MinInt8))
	assert.Equal(t, int16(-2), w.Int16(-2))
	assert.Equal(t, int32(math.MaxInt32), w.Int32(math.MaxInt32))
	assert.Equal(t, uint8(255), w.Uint8(255))
	assert.Equal(t, uint16(65535), w.Uint16(65535))
	assert.Equal(t, uint32(math.MaxUint32), w.Uint32(math.MaxUint32))
	assert.Equal(t, float32(3.5), w.Float32(3.5))
	assert.Equal(t, math.Pi, w.Float64(math.Pi))
	assert.False(t, w.Bool(false))
	assert.Equal(t, "ok", w.String("ok"))
	assert.Equal(t, 1+2+4+1+2+4+4+8+1+(2+2), w.Position())

	r := NewBufferReader(3, w.Bytes(), 0)
	assert.True(t, r.IsLoading())
	assert.Equal(t, int8(math.MinInt8), r.Int8(0))
	assert.Equal(t, int16(-2), r.Int16(0))
	assert.Equal(t, int32(math.MaxInt32), r.Int32(0))
	assert.Equal(t, uint8(255), r.Uint8(0))
	assert.Equal(t, uint16(65535), r.Uint16(0))
	assert.Equal(t, uint32(math.MaxUint32), r.Uint32(0))
	assert.Equal(t, float32(3.5), r.Float32(0))
	assert.Equal(t, math.Pi, r.Float64(0))
	assert.False(t, r.Bool(true))
	assert.Equal(t, "ok", r.String(""))
	assert.Equal(t, w.Position(), r.Position())
}

func TestBufferBigEndianLayout(t *testing.T) {
	w := NewBufferWriter(0, 32)
	w.Int16(-2)
	w.Uint32(0x01020304)
	w.Float32(1)
	w.Float64(-2)
	assert.Equal(t, []byte{
		0xFF, 0xFE,
		0x01, 0x02, 0x03, 0x04,
		0x3F, 0x80, 0x00, 0x00,
		0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}, w.Bytes())
}

func TestBufferFloatSpecialValues(t *testing.T) {
	w := NewBufferWriter(0, 32)
	w.Float64(math.Inf(-1))
	w.Float32(float32(math.NaN()))
	w.Float64(math.Copysign(0, -1))

	r := NewBufferReader(0, w.Bytes(), 0)
	assert.True(t, math.IsInf(r.Float64(0), -1))
	assert.True(t, math.IsNaN(float64(r.Float32(0))))
	assert.True(t, math.Signbit(r.Float64(1)))
}

func TestBufferBoolNormalization(t *testing.T) {
	r := NewBufferReader(0, []byte{0x00, 0x01, 0x02, 0xFF}, 0)
	assert.False(t, r.Bool(true))
	assert.True(t, r.Bool(false))
	assert.True(t, r.Bool(false))
	assert.True(t, r.Bool(false))

	w := NewBufferWriter(0, 2)
	w.Bool(true)
	w.Bool(false)
	assert.Equal(t, []byte{0x01, 0x00}, w.Bytes())
}

func TestBufferStringLengths(t *testing.T) {
	for _, n := range []int{0, 1, 10000} {
		text := strings.Repeat("x", n)
		w := NewBufferWriter(0, n+2)
		assert.Equal(t, text, w.String(text))
		assert.Equal(t, n+2, w.Position())
		assert.Equal(t, byte(n>>8), w.Bytes()[0])
		assert.Equal(t, byte(n), w.Bytes()[1])

		r := NewBufferReader(0, w.Bytes(), 0)
		assert.Equal(t, text, r.String("ignored"))
		assert.Equal(t, n+2, r.Position())
	}
}

func TestBufferStringMultiByte(t *testing.T) {
	text := "弹幕 ✓"
	w := NewBufferWriter(0, 32)
	w.String(text)
	assert.Equal(t, 2+len(text), w.Position())

	r := NewBufferReader(0, w.Bytes(), 0)
	assert.Equal(t, text, r.String(""))
}

func TestBufferStringTooLong(t *testing.T) {
	w := NewBufferWriter(0, 70000)
	w.Uint8(7)
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			assert.True(t, errors.Is(err, merr.ErrLengthOverflow))
		}()
		w.String(strings.Repeat("y", math.MaxUint16+1))
	}()
	assert.Equal(t, 1, w.Position())
}

func TestBufferReaderOffset(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0x00, 0x2A}
	r := NewBufferReader(0, data, 2)
	assert.Equal(t, 2, r.Position())
	assert.Equal(t, uint16(42), r.Uint16(0))
	assert.Equal(t, 4, r.Position())
}

func TestBufferReaderDoesNotCopy(t *testing.T) {
	data := []byte{0x00, 0x01}
	r := NewBufferReader(0, data, 0)
	data[1] = 0x02
	assert.Equal(t, uint16(2), r.Uint16(0))
}

func TestBufferMarkRewind(t *testing.T) {
	w := NewBufferWriter(0, 16)
	w.Uint8(1)
	rewind := w.Mark()
	w.Uint32(0xDEADBEEF)
	assert.Equal(t, 5, w.Position())
	rewind()
	assert.Equal(t, 1, w.Position())
	w.Uint8(2)
	assert.Equal(t, []byte{0x01, 0x02}, w.Bytes())

	// 可重复调用。
	rewind()
	rewind()
	assert.Equal(t, 1, w.Position())

	r := NewBufferReader(0, []byte{0x05, 0x06}, 0)
	back := r.Mark()
	assert.Equal(t, uint8(5), r.Uint8(0))
	back()
	assert.Equal(t, uint8(5), r.Uint8(0))
}

func TestBufferTrackLengthWriting(t *testing.T) {
	w := NewBufferWriter(0, 32)
	w.Uint8(0xFF)
	var seen int
	err := w.TrackLength(func(length int) error {
		seen = length
		w.Uint32(1)
		w.Uint8(2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, seen)
	assert.Equal(t, []byte{0xFF, 0x00, 0x05, 0x00, 0x00, 0x00, 0x01, 0x02}, w.Bytes())
	assert.Equal(t, 8, w.Position())
}

func TestBufferTrackLengthEmptyBody(t *testing.T) {
	w := NewBufferWriter(0, 2)
	require.NoError(t, w.TrackLength(func(int) error { return nil }))
	assert.Equal(t, []byte{0x00, 0x00}, w.Bytes())

	r := NewBufferReader(0, w.Bytes(), 0)
	require.NoError(t, r.TrackLength(func(length int) error {
		assert.Equal(t, 0, length)
		return nil
	}))
	assert.Equal(t, 2, r.Position())
}

func TestBufferTrackLengthNested(t *testing.T) {
	w := NewBufferWriter(0, 32)
	err := w.TrackLength(func(int) error {
		w.Uint8(1)
		return w.TrackLength(func(int) error {
			w.Uint16(0x0203)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x05, 0x01, 0x00, 0x02, 0x02, 0x03}, w.Bytes())
}

func TestBufferTrackLengthReadingSkipsUnread(t *testing.T) {
	data := []byte{0x00, 0x03, 0x0A, 0x0B, 0x0C, 0x7F}
	r := NewBufferReader(0, data, 0)
	err := r.TrackLength(func(length int) error {
		assert.Equal(t, 3, length)
		assert.Equal(t, uint8(0x0A), r.Uint8(0))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Position())
	assert.Equal(t, uint8(0x7F), r.Uint8(0))
}

func TestBufferTrackLengthRollbackOnError(t *testing.T) {
	boom := errors.New("boom")

	w := NewBufferWriter(0, 16)
	w.Uint8(9)
	err := w.TrackLength(func(int) error {
		w.Uint32(7)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, w.Position())

	r := NewBufferReader(0, []byte{0x00, 0x02, 0x01, 0x02}, 0)
	err = r.TrackLength(func(int) error {
		r.Uint8(0)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Position())
}

func TestBufferTrackLengthRollbackOnPanic(t *testing.T) {
	w := NewBufferWriter(0, 4)
	w.Uint8(1)
	assert.Panics(t, func() {
		_ = w.TrackLength(func(int) error {
			w.Uint32(1)
			return nil
		})
	})
	assert.Equal(t, 1, w.Position())

	r := NewBufferReader(0, []byte{0x00, 0x08, 0x01}, 0)
	assert.Panics(t, func() {
		_ = r.TrackLength(func(int) error {
			r.Uint32(0)
			return nil
		})
	})
	assert.Equal(t, 0, r.Position())
}

func TestBufferTrackLengthOverflow(t *testing.T) {
	w := NewBufferWriter(0, 70000)
	err := w.TrackLength(func(int) error {
		for i := 0; i < 17000; i++ {
			w.Uint32(uint32(i))
		}
		return nil
	})
	assert.True(t, errors.Is(err, merr.ErrLengthOverflow))
	assert.Equal(t, 0, w.Position())
}

func TestBufferTrack(t *testing.T) {
	w := NewBufferWriter(0, 16)
	n, err := Track(w, func(int) (int, error) {
		w.String("ab")
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0x00, 0x04, 0x00, 0x02, 'a', 'b'}, w.Bytes())

	r := NewBufferReader(0, w.Bytes(), 0)
	text, err := Track(r, func(length int) (string, error) {
		assert.Equal(t, 4, length)
		return r.String(""), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", text)

	r = NewBufferReader(0, w.Bytes(), 0)
	_, err = Track(r, func(int) (string, error) { return "partial", errors.New("bad frame") })
	assert.Error(t, err)
	assert.Equal(t, 0, r.Position())
}

func TestBufferOverrunPanics(t *testing.T) {
	w := NewBufferWriter(0, 3)
	w.Uint16(1)
	assert.Panics(t, func() { w.Uint16(2) })
	assert.Equal(t, 2, w.Position())

	r := NewBufferReader(0, []byte{0x01}, 0)
	assert.Panics(t, func() { r.Int16(0) })
	assert.Equal(t, 0, r.Position())

	// 读取区域以 len 为界，即使底层数组还有余量。
	backing := make([]byte, 1, 8)
	r = NewBufferReader(0, backing, 0)
	r.Uint8(0)
	assert.Panics(t, func() { r.Uint8(0) })
}

func TestBufferEnd(t *testing.T) {
	w := NewBufferWriter(0, 8)
	w.Uint16(5)
	w.End()
	assert.True(t, w.IsLoading())
	assert.Equal(t, 2, w.Position())

	// End 不重置游标。
	rewind := w.Mark()
	w.Uint8(0)
	rewind()
	assert.Equal(t, 2, w.Position())
}

type upperCodec struct{}

func (upperCodec) Encode(dst []byte, text string) int {
	return UTF8.Encode(dst, strings.ToUpper(text))
}

func (upperCodec) Decode(src []byte, offset, length int) string {
	return strings.ToLower(UTF8.Decode(src, offset, length))
}

func TestBufferTextCodec(t *testing.T) {
	w := NewBufferWriter(0, 16, WithTextCodec(upperCodec{}))
	w.String("abc")
	assert.Equal(t, []byte{0x00, 0x03, 'A', 'B', 'C'}, w.Bytes())

	r := NewBufferReader(0, w.Bytes(), 0, WithTextCodec(upperCodec{}))
	assert.Equal(t, "abc", r.String(""))

	// nil 不会覆盖默认实现。
	plain := NewBufferWriter(0, 8, WithTextCodec(nil))
	plain.String("ab")
	assert.Equal(t, []byte{0x00, 0x02, 'a', 'b'}, plain.Bytes())
}
