package zenohrpc

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// transport 层错误
var (
	ErrTimeout       = errors.New("zenohrpc: query timeout")
	ErrSessionClosed = errors.New("zenohrpc: session closed")
	ErrReplyError    = errors.New("zenohrpc: responder replied with error")
	ErrNoQueryable   = errors.New("zenohrpc: no queryable for topic")
)

// ByteReader payload 字节流读取端，Remaining 返回剩余长度
type ByteReader interface {
	io.Reader
	Remaining() int
}

// ByteWriter payload 字节流写入端。
// 编码器直接写入，Finish 之前不要求连续缓冲；Finish 之后不可再写
type ByteWriter interface {
	io.Writer
	Finish() ([]byte, error)
}

// Reply 客户端收到的应答
type Reply interface {
	Payload() ByteReader
}

// Query 服务端收到的查询，Reply 将 writer 定稿并作为应答发回
type Query interface {
	Topic() string
	Payload() ByteReader
	Reply(w ByteWriter) error
}

// QueryHandler 由 session 的读任务回调，不可长时间阻塞
type QueryHandler func(q Query)

// Publisher 绑定单个 topic 的发布端
type Publisher interface {
	Topic() string
	Put(w ByteWriter) error
	PutBytes(b []byte) error
	Undeclare() error
}

// Queryable 已注册的查询应答端
type Queryable interface {
	Undeclare() error
}

// SampleHandler 订阅回调，在 session 的读任务上下文执行
type SampleHandler func(topic string, payload ByteReader)

// Subscriber 已声明的订阅端
type Subscriber interface {
	Undeclare() error
}

// Session 消息基底会话：声明发布端/应答端、同步查询、流式读写。
// 基底本身（链路、重传等）不在本层范围内
type Session interface {
	DeclarePublisher(topic string) (Publisher, error)
	DeclareSubscriber(topic string, handler SampleHandler) (Subscriber, error)
	DeclareQueryable(topic string, handler QueryHandler) (Queryable, error)
	// Query 阻塞直到收到首个应答或超时；多余的应答被丢弃（first-wins）
	Query(ctx context.Context, topic string, payload []byte, timeout time.Duration) (Reply, error)
	NewWriter() ByteWriter
	Close() error
}

// bytesReader 基于内存切片的 ByteReader
type bytesReader struct {
	buf []byte
	off int
}

func NewBytesReader(b []byte) ByteReader {
	return &bytesReader{buf: b}
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.off >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}

func (r *bytesReader) Remaining() int {
	return len(r.buf) - r.off
}

type bytesReply struct {
	payload []byte
}

func (r *bytesReply) Payload() ByteReader {
	return NewBytesReader(r.payload)
}

// chunkWriter 分块收集的 ByteWriter，Finish 时才拼接
type chunkWriter struct {
	chunks   [][]byte
	size     int
	finished bool
}

func NewChunkWriter() ByteWriter {
	return &chunkWriter{}
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if w.finished {
		return 0, errors.New("zenohrpc: write after finish")
	}
	c := make([]byte, len(p))
	copy(c, p)
	w.chunks = append(w.chunks, c)
	w.size += len(p)
	return len(p), nil
}

func (w *chunkWriter) Finish() ([]byte, error) {
	if w.finished {
		return nil, errors.New("zenohrpc: writer already finished")
	}
	w.finished = true
	if len(w.chunks) == 1 {
		return w.chunks[0], nil
	}
	out := make([]byte, 0, w.size)
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	w.chunks = nil
	return out, nil
}
