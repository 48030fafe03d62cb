package serializer

// TextCodec 负责字符串与字节之间的转换，BufferSerializer 通过它读写 String 字段。
type TextCodec interface {
	// Encode 将 text 编码写入 dst 的起始位置，返回写入的字节数。
	// dst 空间不足时应当 panic，与其他字段越界的处理方式保持一致。
	Encode(dst []byte, text string) int

	// Decode 将 src[offset:offset+length] 解码为字符串。
	Decode(src []byte, offset, length int) string
}

type utf8Codec struct{}

// UTF8 是默认的文本编解码器。Go 字符串本身即为 UTF-8 字节序列，按字节原样拷贝。
var UTF8 TextCodec = utf8Codec{}

func (utf8Codec) Encode(dst []byte, text string) int {
	return copy(dst[:len(text)], text)
}

func (utf8Codec) Decode(src []byte, offset, length int) string {
	return string(src[offset : offset+length])
}
