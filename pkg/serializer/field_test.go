package serializer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/dualser/pkg/util/merr"
)

func TestFieldTypeNames(t *testing.T) {
	assert.Equal(t, "u16", FieldUint16.String())
	assert.Equal(t, "str", FieldString.String())
	assert.Equal(t, "frame", FieldFrame.String())
	assert.Equal(t, "field(200)", FieldType(200).String())

	widths := map[FieldType]int{
		FieldInt8:    1,
		FieldUint8:   1,
		FieldBool:    1,
		FieldInt16:   2,
		FieldUint16:  2,
		FieldInt32:   4,
		FieldUint32:  4,
		FieldFloat32: 4,
		FieldFloat64: 8,
		FieldString:  0,
		FieldFrame:   0,
	}
	for ft, width := range widths {
		assert.Equal(t, width, ft.Width(), ft.String())
	}
}

func TestApplyRoundTrip(t *testing.T) {
	fields := []struct {
		ft FieldType
		v  Value
	}{
		{FieldInt8, IntValue(-8)},
		{FieldInt16, IntValue(-16)},
		{FieldInt32, IntValue(-32)},
		{FieldUint8, UintValue[uint8](8)},
		{FieldUint16, UintValue[uint16](16)},
		{FieldUint32, UintValue[uint32](32)},
		{FieldFloat32, Float32Value(0.5)},
		{FieldFloat64, Float64Value(0.25)},
		{FieldBool, BoolValue(true)},
		{FieldString, StringValue("s")},
	}

	w := NewBufferWriter(0, 64)
	for _, f := range fields {
		_, err := Apply(w, f.ft, f.v)
		require.NoError(t, err)
	}

	r := NewBufferReader(0, w.Bytes(), 0)
	for _, f := range fields {
		got, err := Apply(r, f.ft, Value{})
		require.NoError(t, err)
		assert.Equal(t, f.v.Interface(), got.Interface(), f.ft.String())
	}
}

func TestApplyErrors(t *testing.T) {
	w := NewBufferWriter(0, 8)
	_, err := Apply(w, FieldUint8, IntValue(-1))
	assert.True(t, errors.Is(err, merr.ErrValueKind))
	assert.Equal(t, 0, w.Position())

	_, err = Apply(w, FieldFrame, Value{})
	assert.True(t, errors.Is(err, merr.ErrOperationNotSupported))

	_, err = Apply(w, FieldInvalid, Value{})
	assert.Error(t, err)
}
