package layout

import (
	"github.com/lk2023060901/dualser/pkg/serializer"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// Run 按布局在 s 上执行一遍字段访问。
//
// 写模式下依次消费 values（个数必须等于 Len），返回值与 values 相同；
// 读模式下忽略 values，返回读取到的 Value 序列。分组在结果中被展平。
// 字段操作的越界 panic 不在此处处理，需要错误返回时请配合 serializer.Safely 使用。
func (l *Layout) Run(s serializer.Serializer, values []serializer.Value) ([]serializer.Value, error) {
	if !s.IsLoading() && len(values) != l.Len() {
		return nil, merr.WrapErrParameterInvalid(l.Len(), len(values), "value count")
	}
	r := &runner{s: s, in: values, out: make([]serializer.Value, 0, l.Len())}
	if err := r.fields(l.fields); err != nil {
		return nil, err
	}
	return r.out, nil
}

type runner struct {
	s   serializer.Serializer
	in  []serializer.Value
	out []serializer.Value
}

func (r *runner) fields(fields []Field) error {
	for _, f := range fields {
		if err := r.field(f); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) field(f Field) error {
	if f.Type == serializer.FieldFrame {
		// 帧回滚时同时丢弃帧内已产生的结果，保持结果与游标一致。
		produced := len(r.out)
		err := r.s.TrackLength(func(int) error {
			return r.fields(f.Fields)
		})
		if err != nil {
			r.out = r.out[:produced]
		}
		return err
	}

	var cur serializer.Value
	if !r.s.IsLoading() {
		cur = r.in[len(r.out)]
	}
	v, err := serializer.Apply(r.s, f.Type, cur)
	if err != nil {
		return err
	}
	r.out = append(r.out, v)
	return nil
}

// Pipe 按布局从读模式的 src 逐字段读取，并立即写入写模式的 dst。
// 分组在两端分别对应一个 TrackLength 帧，例如二进制与 Value 序列之间的互转。
func (l *Layout) Pipe(src, dst serializer.Serializer) error {
	if !src.IsLoading() {
		return merr.WrapErrParameterInvalidMsg("pipe source must be in reading mode")
	}
	if dst.IsLoading() {
		return merr.WrapErrParameterInvalidMsg("pipe destination must be in writing mode")
	}
	p := &piper{src: src, dst: dst}
	return p.fields(l.fields)
}

type piper struct {
	src serializer.Serializer
	dst serializer.Serializer
}

func (p *piper) fields(fields []Field) error {
	for _, f := range fields {
		if err := p.field(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *piper) field(f Field) error {
	if f.Type == serializer.FieldFrame {
		return p.src.TrackLength(func(int) error {
			return p.dst.TrackLength(func(int) error {
				return p.fields(f.Fields)
			})
		})
	}
	v, err := serializer.Apply(p.src, f.Type, serializer.Value{})
	if err != nil {
		return err
	}
	_, err = serializer.Apply(p.dst, f.Type, v)
	return err
}
