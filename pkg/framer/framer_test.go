package framer

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

func TestFramerRoundTrip(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	assert.Equal(t, DefaultMaxFrameSize, f.MaxFrameSize)

	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, []byte("abc")))
	require.NoError(t, f.WriteFrame(&buf, nil))
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c', 0, 0, 0, 0}, buf.Bytes())

	first, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), first)

	empty, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestFramerMaxSize(t *testing.T) {
	f := NewLengthPrefixedFramer(4)
	before := testutil.ToFloat64(metrics.FramerRejectedFrames.WithLabelValues(metrics.OutboundDirection))

	err := f.WriteFrame(io.Discard, []byte("12345"))
	assert.True(t, errors.Is(err, merr.ErrFrameTooLarge))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FramerRejectedFrames.WithLabelValues(metrics.OutboundDirection)))

	_, err = f.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 1, 2, 3, 4, 5}))
	assert.True(t, errors.Is(err, merr.ErrFrameTooLarge))

	var zero *LengthPrefixedFramer
	assert.Equal(t, DefaultMaxFrameSize, zero.effectiveMaxSize())
}

func TestFramerTruncated(t *testing.T) {
	f := NewLengthPrefixedFramer(0)

	_, err := f.ReadFrame(bytes.NewReader([]byte{0, 0}))
	assert.True(t, errors.Is(err, merr.ErrIoUnexpectEOF))

	_, err = f.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 4, 'a'}))
	assert.True(t, errors.Is(err, merr.ErrIoUnexpectEOF))
	assert.True(t, merr.IsRetryableErr(err))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestFramerWriteFailure(t *testing.T) {
	err := NewLengthPrefixedFramer(0).WriteFrame(failingWriter{}, []byte("x"))
	assert.True(t, errors.Is(err, merr.ErrIoFailed))
}

func TestVisitFrameBorrowsPooledBuffer(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, []byte{9, 8, 7}))

	var seen []byte
	require.NoError(t, f.VisitFrame(&buf, func(payload []byte) error {
		seen = append(seen, payload...)
		return nil
	}))
	assert.Equal(t, []byte{9, 8, 7}, seen)

	boom := errors.New("boom")
	require.NoError(t, f.WriteFrame(&buf, []byte{1}))
	assert.ErrorIs(t, f.VisitFrame(&buf, func([]byte) error { return boom }), boom)
}

func TestStreamWriterReader(t *testing.T) {
	logger, _, err := log.InitTestLogger(t, &log.Config{Level: "debug"})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	w.SetLogger(&log.MLogger{Logger: logger})
	for _, payload := range [][]byte{[]byte("one"), []byte("two"), {}} {
		require.NoError(t, w.Write(payload))
	}
	assert.Equal(t, 3, w.Frames())

	r := NewReader(&buf, NewLengthPrefixedFramer(1024))
	r.SetLogger(&log.MLogger{Logger: logger})
	var got []string
	for {
		err := r.Next(func(payload []byte) error {
			got = append(got, string(payload))
			return nil
		})
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"one", "two", ""}, got)
	assert.Equal(t, 3, r.Frames())

	small := NewWriter(io.Discard, NewLengthPrefixedFramer(1))
	assert.Error(t, small.Write([]byte("too big")))
	assert.Equal(t, 0, small.Frames())
}

func TestStreamFrameLogsAreRated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := (&log.MLogger{Logger: zap.New(core)}).WithRateGroup("framer.test.rated", 0.0001, 1)

	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	w.SetLogger(logger)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write([]byte{byte(i)}))
	}
	assert.Equal(t, 3, w.Frames())
	assert.Equal(t, 1, logs.FilterMessage("frame written").Len())

	r := NewReader(&buf, nil)
	r.SetLogger(logger)
	require.NoError(t, r.Next(func([]byte) error { return nil }))
	assert.Equal(t, 0, logs.FilterMessage("frame read").Len())
}
