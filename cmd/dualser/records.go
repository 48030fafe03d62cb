package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/dualser/pkg/framer"
)

// maxLineSize 为逐行读取时单行的最大长度。
const maxLineSize = 64 << 20

// recordSource 逐条产出输入记录，结束时返回 io.EOF。
type recordSource interface {
	Next() ([]byte, error)
}

// recordSink 逐条写出记录。
type recordSink interface {
	Put(record []byte) error
	Flush() error
}

// lineSource 每个非空行为一条记录，hexed 为 true 时按十六进制解码。
type lineSource struct {
	scanner *bufio.Scanner
	hexed   bool
	line    int
}

func newLineSource(r io.Reader, hexed bool) *lineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &lineSource{scanner: scanner, hexed: hexed}
}

func (s *lineSource) Next() ([]byte, error) {
	for s.scanner.Scan() {
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !s.hexed {
			return append([]byte(nil), line...), nil
		}
		out := make([]byte, hex.DecodedLen(len(line)))
		if _, err := hex.Decode(out, line); err != nil {
			return nil, errors.Wrapf(err, "line %d", s.line)
		}
		return out, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// frameSource 从长度前缀分帧的流中读取记录。
type frameSource struct {
	reader *framer.Reader
}

func (s *frameSource) Next() ([]byte, error) {
	var out []byte
	err := s.reader.Next(func(payload []byte) error {
		out = append(make([]byte, 0, len(payload)), payload...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lineSink 每条记录输出一行，hexed 为 true 时输出十六进制文本。
type lineSink struct {
	w     *bufio.Writer
	hexed bool
}

func newLineSink(w io.Writer, hexed bool) *lineSink {
	return &lineSink{w: bufio.NewWriter(w), hexed: hexed}
}

func (s *lineSink) Put(record []byte) error {
	if s.hexed {
		if _, err := s.w.WriteString(hex.EncodeToString(record)); err != nil {
			return err
		}
	} else if _, err := s.w.Write(record); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *lineSink) Flush() error {
	return s.w.Flush()
}

// frameSink 将记录写为长度前缀帧。
type frameSink struct {
	buf    *bufio.Writer
	writer *framer.Writer
}

func newFrameSink(w io.Writer, f *framer.LengthPrefixedFramer) *frameSink {
	buf := bufio.NewWriter(w)
	return &frameSink{buf: buf, writer: framer.NewWriter(buf, f)}
}

func (s *frameSink) Put(record []byte) error {
	return s.writer.Write(record)
}

func (s *frameSink) Flush() error {
	return s.buf.Flush()
}
