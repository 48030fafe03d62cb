// Package layout 提供文本形式的字段布局描述，例如 "u16,str,bool,{i32,f64}"。
//
// 布局被编译为一组字段操作，可以在任意 serializer.Serializer 上执行，
// 也可以在一个读模式与一个写模式的 Serializer 之间逐字段转码。
//
// 语法：
//
//	layout := item ("," item)*
//	item   := (type | "{" layout "}") ["*" count]
//	type   := i8 | i16 | i32 | u8 | u16 | u32 | f32 | f64 | bool | str
//
// 花括号表示一个带长度前缀的分组（TrackLength 帧），"*count" 表示重复 count 次。
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/lk2023060901/dualser/pkg/serializer"
	"github.com/lk2023060901/dualser/pkg/util/merr"
	"github.com/lk2023060901/dualser/pkg/util/typeutil"
)

const (
	// MaxRepeat 为 "*count" 允许的最大重复次数。
	MaxRepeat = 4096
	// MaxLeaves 为展开重复项后叶子字段总数的上限，嵌套重复按乘积计算。
	MaxLeaves = 1 << 16
)

var typeNames = map[string]serializer.FieldType{
	"i8":      serializer.FieldInt8,
	"int8":    serializer.FieldInt8,
	"i16":     serializer.FieldInt16,
	"int16":   serializer.FieldInt16,
	"i32":     serializer.FieldInt32,
	"int32":   serializer.FieldInt32,
	"u8":      serializer.FieldUint8,
	"uint8":   serializer.FieldUint8,
	"byte":    serializer.FieldUint8,
	"u16":     serializer.FieldUint16,
	"uint16":  serializer.FieldUint16,
	"u32":     serializer.FieldUint32,
	"uint32":  serializer.FieldUint32,
	"f32":     serializer.FieldFloat32,
	"float32": serializer.FieldFloat32,
	"float":   serializer.FieldFloat32,
	"f64":     serializer.FieldFloat64,
	"float64": serializer.FieldFloat64,
	"double":  serializer.FieldFloat64,
	"bool":    serializer.FieldBool,
	"str":     serializer.FieldString,
	"string":  serializer.FieldString,
}

// Field 是布局中的一个字段；Type 为 FieldFrame 时 Fields 为分组内的字段。
type Field struct {
	Type   serializer.FieldType
	Fields []Field
}

func (f Field) String() string {
	if f.Type == serializer.FieldFrame {
		return "{" + joinFields(f.Fields) + "}"
	}
	return f.Type.String()
}

func joinFields(fields []Field) string {
	return strings.Join(lo.Map(fields, func(f Field, _ int) string { return f.String() }), ",")
}

// Layout 是编译后的字段布局，创建后只读，可在多个 goroutine 间共享。
type Layout struct {
	source string
	fields []Field
	types  typeutil.Set[serializer.FieldType]
}

// Parse 解析布局描述。类型名不区分大小写，允许任意空白。
func Parse(source string) (*Layout, error) {
	p := &parser{src: source}
	fields, _, err := p.list(false)
	if err != nil {
		return nil, err
	}
	return &Layout{source: source, fields: fields, types: collectTypes(fields)}, nil
}

// MustParse 与 Parse 相同，解析失败时 panic。
func MustParse(source string) *Layout {
	l, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return l
}

// Source 返回解析时的原始文本。
func (l *Layout) Source() string {
	return l.source
}

// String 返回规范化后的布局文本，重复项被展开。
func (l *Layout) String() string {
	return joinFields(l.fields)
}

// Fields 返回顶层字段。
func (l *Layout) Fields() []Field {
	return l.fields
}

// Len 返回布局中叶子字段（不含分组本身）的个数，即对应 Value 序列的长度。
func (l *Layout) Len() int {
	return countLeaves(l.fields)
}

func countLeaves(fields []Field) int {
	return lo.SumBy(fields, func(f Field) int {
		if f.Type == serializer.FieldFrame {
			return countLeaves(f.Fields)
		}
		return 1
	})
}

// FixedSize 返回二进制编码的固定字节数。布局包含字符串时返回 false。
func (l *Layout) FixedSize() (int, bool) {
	return fixedSize(l.fields)
}

func fixedSize(fields []Field) (int, bool) {
	total := 0
	for _, f := range fields {
		switch {
		case f.Type == serializer.FieldFrame:
			inner, ok := fixedSize(f.Fields)
			if !ok {
				return 0, false
			}
			total += 2 + inner
		case f.Type.Width() > 0:
			total += f.Type.Width()
		default:
			return 0, false
		}
	}
	return total, true
}

// Types 返回布局中出现过的字段类型集合，包含分组。
// 返回值是副本，调用方可以自由修改。
func (l *Layout) Types() typeutil.Set[serializer.FieldType] {
	return l.types.Clone()
}

// LeafTypes 返回布局中出现过的叶子字段类型，不含分组。
func (l *Layout) LeafTypes() typeutil.Set[serializer.FieldType] {
	types := l.Types()
	types.Remove(serializer.FieldFrame)
	return types
}

func collectTypes(fields []Field) typeutil.Set[serializer.FieldType] {
	set := typeutil.NewSet[serializer.FieldType]()
	for _, f := range fields {
		set.Insert(f.Type)
		if f.Type == serializer.FieldFrame {
			set = set.Union(collectTypes(f.Fields))
		}
	}
	return set
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(format string, args ...any) error {
	return merr.WrapErrLayoutInvalid(p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && strings.IndexByte(" \t\r\n", p.peek()) >= 0 {
		p.pos++
	}
}

// list 解析以逗号分隔的字段列表，返回字段以及展开后的叶子字段数。
// nested 为 true 时遇到 '}' 结束且不消费它。
func (p *parser) list(nested bool) ([]Field, int, error) {
	var fields []Field
	leaves := 0
	for {
		p.skipSpace()
		if p.eof() || p.peek() == '}' || p.peek() == ',' {
			if len(fields) == 0 {
				return nil, 0, p.fail("expected field type")
			}
			return nil, 0, p.fail("dangling ','")
		}

		start := p.pos
		items, n, err := p.item()
		if err != nil {
			return nil, 0, err
		}
		leaves += n
		if leaves > MaxLeaves {
			p.pos = start
			return nil, 0, p.fail("layout expands to more than %d fields", MaxLeaves)
		}
		fields = append(fields, items...)

		p.skipSpace()
		switch {
		case p.eof():
			if nested {
				return nil, 0, p.fail("unclosed '{'")
			}
			return fields, leaves, nil
		case p.peek() == '}':
			if !nested {
				return nil, 0, p.fail("unexpected '}'")
			}
			return fields, leaves, nil
		case p.peek() == ',':
			p.pos++
		default:
			return nil, 0, p.fail("unexpected %q", p.peek())
		}
	}
}

// item 解析单个字段或分组以及可选的重复次数，返回展开后的字段与叶子字段数。
func (p *parser) item() ([]Field, int, error) {
	start := p.pos
	var field Field
	leaves := 1
	if p.peek() == '{' {
		p.pos++
		inner, n, err := p.list(true)
		if err != nil {
			return nil, 0, err
		}
		p.pos++
		field = Field{Type: serializer.FieldFrame, Fields: inner}
		leaves = n
	} else {
		start := p.pos
		for !p.eof() && isIdent(p.peek()) {
			p.pos++
		}
		name := strings.ToLower(p.src[start:p.pos])
		ft, ok := typeNames[name]
		if !ok {
			p.pos = start
			if name == "" {
				return nil, 0, p.fail("unexpected %q", p.peek())
			}
			return nil, 0, p.fail("unknown field type %q", name)
		}
		field = Field{Type: ft}
	}

	count, err := p.repeat()
	if err != nil {
		return nil, 0, err
	}
	if leaves*count > MaxLeaves {
		p.pos = start
		return nil, 0, p.fail("layout expands to more than %d fields", MaxLeaves)
	}
	return lo.Times(count, func(int) Field { return field }), leaves * count, nil
}

func (p *parser) repeat() (int, error) {
	p.skipSpace()
	if p.eof() || p.peek() != '*' {
		return 1, nil
	}
	p.pos++
	p.skipSpace()
	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil || n < 1 || n > MaxRepeat {
		p.pos = start
		return 0, p.fail("repeat count must be within [1, %d]", MaxRepeat)
	}
	return n, nil
}

func isIdent(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
