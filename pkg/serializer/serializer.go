package serializer

// Serializer 抽象了"同一段字段访问序列既用于编码也用于解码"的能力。
//
// 约定：
//   - 每个字段操作接收一个值并返回一个值。写模式下写入并原样返回传入值；
//     读模式下忽略传入值，返回从底层存储中读取到的值。
//   - 调用方只需编写一次字段访问顺序，同一段代码即可完成写入与读取。
//   - 字段操作本身不返回 error。缓冲区越界等编程错误以 panic 形式抛出，
//     由 Marshal/Unmarshal 等辅助函数统一 recover 并转换为 merr 错误。
type Serializer interface {
	// Version 返回构造时传入的格式版本号，供调用方按版本分支字段布局。
	Version() int

	// IsLoading 为 true 表示读模式，false 表示写模式。
	IsLoading() bool

	// Position 返回当前游标位置。
	// 二进制实现中为字节偏移，数组实现中为元素下标。
	Position() int

	Int8(v int8) int8
	Int16(v int16) int16
	Int32(v int32) int32
	Uint8(v uint8) uint8
	Uint16(v uint16) uint16
	Uint32(v uint32) uint32
	Float32(v float32) float32
	Float64(v float64) float64
	Bool(v bool) bool
	String(v string) string

	// Mark 记录当前位置，返回的 Rewind 被调用时将游标恢复到该位置。
	Mark() Rewind

	// TrackLength 为 body 写入的内容加上长度前缀。
	//
	// 读模式下 body 收到的是从数据中读出的长度；写模式下收到的是占位值。
	// body 返回错误或发生 panic 时，游标恢复到调用 TrackLength 之前的位置。
	TrackLength(body func(length int) error) error

	// End 结束写入阶段并切换到读模式。
	End()
}

// Rewind 将游标恢复到 Mark 时记录的位置，可多次调用。
type Rewind func()

// Serializable 描述可以通过 Serializer 完成双向编解码的类型。
//
// 实现时每个字段调用一次对应的 Serializer 操作并将返回值赋回字段，例如：
//
//	func (p *Point) Serialize(s serializer.Serializer) error {
//		p.X = s.Int32(p.X)
//		p.Y = s.Int32(p.Y)
//		return nil
//	}
type Serializable interface {
	Serialize(s Serializer) error
}

// Func 将普通函数适配为 Serializable。
type Func func(s Serializer) error

func (f Func) Serialize(s Serializer) error {
	return f(s)
}

// Track 是 TrackLength 的泛型版本，body 可以返回一个结果值。
// 失败时返回 T 的零值以及 body 的错误。
func Track[T any](s Serializer, body func(length int) (T, error)) (T, error) {
	var result T
	err := s.TrackLength(func(length int) error {
		v, err := body(length)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func modeName(loading bool) string {
	if loading {
		return "reading"
	}
	return "writing"
}
