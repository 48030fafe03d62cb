package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/dualser/application"
	"github.com/lk2023060901/dualser/pkg/framer"
	"github.com/lk2023060901/dualser/pkg/serializer"
)

func isolate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(application.ConfigPathEnv, "")
}

func invoke(t *testing.T, stdin []byte, args ...string) (int, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	code := run(args, bytes.NewReader(stdin), &stdout, &stderr)
	return code, &stdout, &stderr
}

func TestUsage(t *testing.T) {
	isolate(t)
	code, _, stderr := invoke(t, nil)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "encode")

	code, stdout, _ := invoke(t, nil, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "layout")

	code, _, stderr = invoke(t, nil, "bogus")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), `unknown command "bogus"`)

	code, _, _ = invoke(t, nil, "encode", "--no-such-flag")
	assert.Equal(t, exitUsage, code)
}

func TestEncodeDecodeHexLines(t *testing.T) {
	isolate(t)
	input := "[10,\"hello\",true]\n\n[65535,\"\",false]\n"
	code, stdout, stderr := invoke(t, []byte(input), "encode", "--layout", "u16,str,bool", "--workers", "2", "--batch-size", "1")
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "000a000568656c6c6f01\nffff000000\n", stdout.String())

	code, decoded, stderr := invoke(t, stdout.Bytes(), "decode", "--layout", "u16,str,bool")
	require.Equal(t, exitOK, code, stderr.String())
	lines := strings.Split(strings.TrimSpace(decoded.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `[10,"hello",true]`, lines[0])
	assert.JSONEq(t, `[65535,"",false]`, lines[1])
}

func TestEncodeFramedWithFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(in, []byte("[1,2.5]\n[2,-1]\n"), 0o600))

	code, _, stderr := invoke(t, nil, "encode", "--layout", "u8,{f64}", "--framed", "--in", in, "--out", out)
	require.Equal(t, exitOK, code, stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	reader := framer.NewReader(bytes.NewReader(data), nil)
	frames := 0
	for reader.Next(func(payload []byte) error {
		assert.Len(t, payload, 1+2+8)
		return nil
	}) == nil {
		frames++
	}
	assert.Equal(t, 2, frames)

	code, decoded, stderr := invoke(t, data, "decode", "--layout", "u8,{f64}", "--framed")
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, 2, strings.Count(decoded.String(), "\n"))
}

func TestEncodeBinaryInterchange(t *testing.T) {
	isolate(t)
	record, err := serializer.MsgPackCodec{}.Marshal([]serializer.Value{
		serializer.IntValue(-3),
		serializer.StringValue("mp"),
	})
	require.NoError(t, err)
	var framed bytes.Buffer
	require.NoError(t, framer.NewLengthPrefixedFramer(0).WriteFrame(&framed, record))

	code, stdout, stderr := invoke(t, framed.Bytes(), "encode", "--layout", "i32,str", "--format", "msgpack")
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "fffffffd00026d70\n", stdout.String())

	code, back, stderr := invoke(t, stdout.Bytes(), "decode", "--layout", "i32,str", "--format", "msgpack")
	require.Equal(t, exitOK, code, stderr.String())
	payload, err := framer.NewLengthPrefixedFramer(0).ReadFrame(back)
	require.NoError(t, err)
	values, err := serializer.MsgPackCodec{}.Unmarshal(payload)
	require.NoError(t, err)
	n, err := serializer.AsInt[int32](values[0])
	require.NoError(t, err)
	assert.Equal(t, int32(-3), n)
}

func TestEncodeFailures(t *testing.T) {
	isolate(t)
	code, _, stderr := invoke(t, []byte("[1]\n"), "encode")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "layout is required")

	code, _, stderr = invoke(t, []byte("[300]\n"), "encode", "--layout", "u8")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "record 0")

	code, _, _ = invoke(t, []byte("zz\n"), "decode", "--layout", "u8")
	assert.Equal(t, exitError, code)

	code, _, _ = invoke(t, []byte("[1]\n"), "encode", "--layout", "u8", "--format", "xml")
	assert.Equal(t, exitError, code)

	code, _, _ = invoke(t, nil, "encode", "--layout", "u8", "--in", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, exitError, code)
}

func TestLayoutCommand(t *testing.T) {
	isolate(t)
	code, stdout, stderr := invoke(t, nil, "layout", "u16,str,{bool,f64}")
	require.Equal(t, exitOK, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "layout: u16,str,{bool,f64}\n")
	assert.Contains(t, out, "fields: 4\n")
	assert.Contains(t, out, "size: variable\n")
	assert.Contains(t, out, "types: u16,f64,bool,str,frame\n")
	assert.Contains(t, out, "  frame (2 bytes length prefix)\n")
	assert.Contains(t, out, "    f64 (8 bytes)\n")

	code, stdout, _ = invoke(t, nil, "layout", "--layout", "u8*2")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "size: 2 bytes\n")

	code, _, _ = invoke(t, nil, "layout", "u8,")
	assert.Equal(t, exitError, code)
}

func TestMetricsDump(t *testing.T) {
	isolate(t)
	code, _, stderr := invoke(t, []byte("[7]\n"), "encode", "--layout", "u8", "--metrics")
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stderr.String(), "dualser_transcode_records_total")
}

func TestConfigFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("dualser.yaml", []byte("serializer:\n  layout: u8,u8\n"), 0o600))
	code, stdout, stderr := invoke(t, []byte("[1,2]\n"), "encode")
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "0102\n", stdout.String())
}
