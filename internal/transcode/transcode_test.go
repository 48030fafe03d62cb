package transcode

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/dualser/pkg/layout"
	"github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/serializer"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

func newTranscoder(t *testing.T, values serializer.ValueCodec) *Transcoder {
	tc := New(layout.NewCodec(layout.MustParse("u16,str,bool"), 1), values, 3)
	logger, _, err := log.InitTestLogger(t, &log.Config{Level: "debug"})
	require.NoError(t, err)
	tc.SetLogger(&log.MLogger{Logger: logger})
	t.Cleanup(tc.Close)
	return tc
}

func TestEncodeDecodePreservesOrder(t *testing.T) {
	tc := newTranscoder(t, nil)
	assert.Equal(t, 3, tc.Workers())

	records := make([][]byte, 0, 50)
	for i := 0; i < 50; i++ {
		records = append(records, []byte(fmt.Sprintf(`[%d,"r%d",%t]`, i, i, i%2 == 0)))
	}

	before := testutil.ToFloat64(metrics.TranscodeRecords.WithLabelValues(metrics.EncodeOp, metrics.SuccessStatus))
	bin, err := tc.Encode(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, bin, 50)
	assert.Equal(t, before+50, testutil.ToFloat64(metrics.TranscodeRecords.WithLabelValues(metrics.EncodeOp, metrics.SuccessStatus)))

	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x02, 'r', '0', 0x01}, bin[0])

	back, err := tc.Decode(context.Background(), bin)
	require.NoError(t, err)
	for i, record := range back {
		assert.JSONEq(t, string(records[i]), string(record))
	}
}

func TestEncodeReportsFailingRecord(t *testing.T) {
	tc := newTranscoder(t, serializer.JSONCodec{})
	records := [][]byte{
		[]byte(`[1,"ok",true]`),
		[]byte(`[70000,"too big",true]`),
		[]byte(`not json`),
	}
	before := testutil.ToFloat64(metrics.TranscodeRecords.WithLabelValues(metrics.EncodeOp, metrics.FailStatus))
	_, err := tc.Encode(context.Background(), records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, merr.ErrValueKind))
	assert.Contains(t, err.Error(), "record 1")
	assert.Contains(t, err.Error(), "record 2")
	assert.NotContains(t, err.Error(), "record 0")
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.TranscodeRecords.WithLabelValues(metrics.EncodeOp, metrics.FailStatus)))
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	tc := newTranscoder(t, nil)
	bin, err := tc.Encode(context.Background(), [][]byte{[]byte(`[5,"x",false]`)})
	require.NoError(t, err)

	padded := append(append([]byte{}, bin[0]...), 0xFF)
	_, err = tc.Decode(context.Background(), [][]byte{padded})
	assert.True(t, errors.Is(err, merr.ErrParameterInvalid))

	_, err = tc.Decode(context.Background(), [][]byte{bin[0][:3]})
	assert.True(t, errors.Is(err, merr.ErrShortRead))
}

func TestInterchangeFormats(t *testing.T) {
	for _, format := range []serializer.Format{serializer.FormatCBOR, serializer.FormatMsgPack, serializer.FormatProto} {
		values, err := serializer.CodecFor(format)
		require.NoError(t, err)
		tc := newTranscoder(t, values)

		in, err := values.Marshal([]serializer.Value{
			serializer.IntValue(9),
			serializer.StringValue("fmt"),
			serializer.BoolValue(true),
		})
		require.NoError(t, err)

		bin, err := tc.Encode(context.Background(), [][]byte{in})
		require.NoError(t, err, format)
		assert.Equal(t, []byte{0x00, 0x09, 0x00, 0x03, 'f', 'm', 't', 0x01}, bin[0], format)

		out, err := tc.Decode(context.Background(), bin)
		require.NoError(t, err, format)
		decoded, err := values.Unmarshal(out[0])
		require.NoError(t, err, format)
		require.Len(t, decoded, 3)
		text, err := decoded[1].AsString()
		require.NoError(t, err, format)
		assert.Equal(t, "fmt", text)
	}
}

func TestCanceledContext(t *testing.T) {
	tc := newTranscoder(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tc.Encode(ctx, [][]byte{[]byte(`[1,"a",true]`)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmptyBatch(t *testing.T) {
	tc := newTranscoder(t, nil)
	out, err := tc.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
