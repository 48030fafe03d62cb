package layout

import (
	"github.com/lk2023060901/dualser/pkg/serializer"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// DefaultCapacity 为未指定容量时单条记录的编码暂存区大小。
const DefaultCapacity = 64 << 10

// Codec 将布局、格式版本与编码选项绑定在一起，在二进制记录与 Value 序列之间转换。
// Codec 创建后只读，可以被多个 goroutine 并发使用。
type Codec struct {
	layout   *Layout
	version  int
	capacity int
	checked  bool
	opts     []serializer.Option
}

// CodecOption 用于配置 Codec。
type CodecOption func(c *Codec)

// WithCapacity 设置编码暂存区大小。
func WithCapacity(capacity int) CodecOption {
	return func(c *Codec) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithChecked 为每个字段附加类型标记，读写两端需要使用相同设置。
func WithChecked(checked bool) CodecOption {
	return func(c *Codec) {
		c.checked = checked
	}
}

// WithSerializerOptions 透传给底层 BufferSerializer 的选项，例如文本编解码器。
func WithSerializerOptions(opts ...serializer.Option) CodecOption {
	return func(c *Codec) {
		c.opts = append(c.opts, opts...)
	}
}

func NewCodec(l *Layout, version int, opts ...CodecOption) *Codec {
	c := &Codec{
		layout:   l,
		version:  version,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Layout() *Layout {
	return c.layout
}

func (c *Codec) Version() int {
	return c.version
}

// Encode 将 values 按布局编码为二进制记录，返回的切片归调用方所有。
func (c *Codec) Encode(values []serializer.Value) ([]byte, error) {
	if len(values) != c.layout.Len() {
		return nil, merr.WrapErrParameterInvalid(c.layout.Len(), len(values), "value count")
	}
	return serializer.Marshal(c.version, c.capacity, serializer.Func(func(s serializer.Serializer) error {
		src := serializer.NewArrayReader(c.version, values)
		if !c.checked {
			return c.layout.Pipe(src, s)
		}
		dst := serializer.NewChecked(s)
		if err := c.layout.Pipe(src, dst); err != nil {
			return err
		}
		return dst.Err()
	}), c.opts...)
}

// Decode 从 data 起始位置按布局解码一条记录，返回 Value 序列以及记录结束的位置。
func (c *Codec) Decode(data []byte) ([]serializer.Value, int, error) {
	return c.DecodeFrom(data, 0)
}

// DecodeFrom 从 data[offset:] 解码一条记录，便于在同一段数据中连续解码多条记录。
func (c *Codec) DecodeFrom(data []byte, offset int) ([]serializer.Value, int, error) {
	var out []serializer.Value
	next, err := serializer.UnmarshalFrom(c.version, data, offset, serializer.Func(func(s serializer.Serializer) error {
		if !c.checked {
			var err error
			out, err = c.layout.Run(s, nil)
			return err
		}
		cs := serializer.NewChecked(s)
		values, err := c.layout.Run(cs, nil)
		if err != nil {
			return err
		}
		if err := cs.Err(); err != nil {
			return err
		}
		out = values
		return nil
	}), c.opts...)
	if err != nil {
		return nil, offset, err
	}
	return out, next, nil
}
