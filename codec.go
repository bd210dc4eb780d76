package zenohrpc

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// codec 边界：schema 驱动的流式编解码，直接对接 ByteReader/ByteWriter，
// 不要求连续缓冲

// EncodeTo 将 msg 流式编码进 w
func EncodeTo(w io.Writer, msg interface{}) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(msg)
}

// DecodeFrom 从 r 流式解码出 msg
func DecodeFrom(r io.Reader, msg interface{}) error {
	dec := msgpack.NewDecoder(r)
	return dec.Decode(msg)
}

// EncodeBytes 编码为独立 buffer（客户端侧请求预编码用）
func EncodeBytes(msg interface{}) ([]byte, error) {
	return msgpack.Marshal(msg)
}

// DecodeBytes 从 buffer 解码
func DecodeBytes(b []byte, msg interface{}) error {
	return msgpack.Unmarshal(b, msg)
}
