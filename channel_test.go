package zenohrpc

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestChannel(t *testing.T, opts ...Option) (*InprocSession, *RpcChannel) {
	t.Helper()
	session, err := NewInprocSession()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { session.Close() })
	opts = append([]Option{WithDeviceID("test-device")}, opts...)
	return session, NewRpcChannel(session, opts...)
}

func echoHandler(req ByteReader, resp ByteWriter) RpcStatus {
	buf := make([]byte, req.Remaining())
	if _, err := req.Read(buf); err != nil && req.Remaining() > 0 {
		return StatusDecodeError
	}
	if _, err := resp.Write(buf); err != nil {
		return StatusEncodeError
	}
	return StatusOK
}

func TestCallEcho(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	if err := ch.RegisterHandler("DeviceService", "Echo", echoHandler); err != nil {
		t.Fatal(err)
	}

	request := []byte("hello device")
	response := make([]byte, 64)
	n, status := ch.Call(context.Background(), "DeviceService", "Echo", request, response, time.Second)
	if status != StatusOK {
		t.Fatalf("status = %s", status)
	}
	if !bytes.Equal(response[:n], request) {
		t.Fatalf("echo mismatch: %q", response[:n])
	}
}

func TestCallTimeout(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	// 无应答端：等满超时后返回 TIMEOUT
	start := time.Now()
	n, status := ch.Call(context.Background(), "DeviceService", "Missing", nil, make([]byte, 8), 100*time.Millisecond)
	elapsed := time.Since(start)

	if status != StatusTimeout {
		t.Fatalf("status = %s", status)
	}
	if n != 0 {
		t.Fatalf("n = %d", n)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("returned before timeout: %s", elapsed)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout overshoot: %s", elapsed)
	}
}

func TestCallResponseBufferTooSmall(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	err := ch.RegisterHandler("DeviceService", "Big", func(req ByteReader, resp ByteWriter) RpcStatus {
		resp.Write(make([]byte, 256))
		return StatusOK
	})
	if err != nil {
		t.Fatal(err)
	}

	response := bytes.Repeat([]byte{0xee}, 16)
	n, status := ch.Call(context.Background(), "DeviceService", "Big", nil, response, time.Second)
	if status != StatusDecodeError {
		t.Fatalf("status = %s", status)
	}
	if n != 0 {
		t.Fatalf("n = %d", n)
	}
	// 不允许部分拷贝
	if !bytes.Equal(response, bytes.Repeat([]byte{0xee}, 16)) {
		t.Fatal("response buffer was partially written")
	}
}

func TestDispatchFailSilent(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	err := ch.RegisterHandler("DeviceService", "Broken", func(req ByteReader, resp ByteWriter) RpcStatus {
		resp.Write([]byte("partial"))
		return StatusEncodeError
	})
	if err != nil {
		t.Fatal(err)
	}

	// handler 失败不发应答，客户端只能看到超时
	_, status := ch.Call(context.Background(), "DeviceService", "Broken", nil, make([]byte, 64), 100*time.Millisecond)
	if status != StatusTimeout {
		t.Fatalf("status = %s", status)
	}
}

// errSession Query 固定报错的桩 session，用于覆盖 Call 的状态映射
type errSession struct {
	err error
}

func (s *errSession) DeclarePublisher(topic string) (Publisher, error) { return nil, s.err }
func (s *errSession) DeclareSubscriber(topic string, handler SampleHandler) (Subscriber, error) {
	return nil, s.err
}
func (s *errSession) DeclareQueryable(topic string, handler QueryHandler) (Queryable, error) {
	return nil, s.err
}
func (s *errSession) Query(ctx context.Context, topic string, payload []byte, timeout time.Duration) (Reply, error) {
	return nil, s.err
}
func (s *errSession) NewWriter() ByteWriter { return NewChunkWriter() }
func (s *errSession) Close() error          { return nil }

func TestCallStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want RpcStatus
	}{
		{ErrTimeout, StatusTimeout},
		{ErrNoQueryable, StatusNotFound},
		{ErrReplyError, StatusTransportError},
		{ErrSessionClosed, StatusTransportError},
	}
	for _, c := range cases {
		// 基底照例会包装 sentinel，映射必须穿透包装
		session := &errSession{err: errors.Wrap(c.err, "substrate detail")}
		ch := NewRpcChannel(session, WithDeviceID("dev"))
		n, status := ch.Call(context.Background(), "DeviceService", "Echo", nil, make([]byte, 8), time.Second)
		if status != c.want {
			t.Fatalf("%v: status = %s, want %s", c.err, status, c.want)
		}
		if n != 0 {
			t.Fatalf("%v: n = %d", c.err, n)
		}
		ch.Close()
	}
}

type mockQuery struct {
	topic   string
	payload []byte
	replies int
}

func (q *mockQuery) Topic() string            { return q.topic }
func (q *mockQuery) Payload() ByteReader      { return NewBytesReader(q.payload) }
func (q *mockQuery) Reply(w ByteWriter) error { q.replies++; return nil }

func TestDispatchReplyCount(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	q := &mockQuery{topic: "t", payload: []byte("req")}
	// 失败的 handler 一个应答都不发
	for _, status := range []RpcStatus{StatusDecodeError, StatusEncodeError, StatusNotFound, StatusTransportError} {
		status := status
		ch.dispatch("t", func(req ByteReader, resp ByteWriter) RpcStatus { return status }, q)
	}
	if q.replies != 0 {
		t.Fatalf("failed handler sent %d replies", q.replies)
	}

	ch.dispatch("t", echoHandler, q)
	if q.replies != 1 {
		t.Fatalf("successful handler sent %d replies", q.replies)
	}
}

func TestRegisterHandlerCapacity(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	for i := 0; i < DefaultMaxQueryables; i++ {
		err := ch.RegisterHandler("DeviceService", fmt.Sprintf("Method%d", i), echoHandler)
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if ch.ActiveQueryables() != DefaultMaxQueryables {
		t.Fatalf("active = %d", ch.ActiveQueryables())
	}

	err := ch.RegisterHandler("DeviceService", "Overflow", echoHandler)
	if !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
}

func TestRegisterHandlerDuplicate(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	if err := ch.RegisterHandler("DeviceService", "SetLed", echoHandler); err != nil {
		t.Fatal(err)
	}
	err := ch.RegisterHandler("DeviceService", "SetLed", echoHandler)
	if !errors.Is(err, ErrDuplicateTopic) {
		t.Fatalf("expected ErrDuplicateTopic, got %v", err)
	}
	if ch.ActiveQueryables() != 1 {
		t.Fatalf("active = %d", ch.ActiveQueryables())
	}
}

func TestRegisterHandlerBadName(t *testing.T) {
	_, ch := newTestChannel(t)
	defer ch.Close()

	if err := ch.RegisterHandler("", "SetLed", echoHandler); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if ch.ActiveQueryables() != 0 {
		t.Fatal("failed registration left a slot occupied")
	}
}

func TestChannelClose(t *testing.T) {
	session, ch := newTestChannel(t)

	if err := ch.RegisterHandler("DeviceService", "SetLed", echoHandler); err != nil {
		t.Fatal(err)
	}
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
	if ch.ActiveQueryables() != 0 {
		t.Fatal("close did not clear the table")
	}
	// 可重复 Close
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ch.RegisterHandler("DeviceService", "Echo", echoHandler); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}

	// 释放后同一 topic 可被新通道重新注册
	ch2 := NewRpcChannel(session, WithDeviceID("test-device"))
	defer ch2.Close()
	if err := ch2.RegisterHandler("DeviceService", "SetLed", echoHandler); err != nil {
		t.Fatal(err)
	}
}

func TestCallDefaultTimeout(t *testing.T) {
	_, ch := newTestChannel(t, WithCallTimeout(50*time.Millisecond))
	defer ch.Close()

	start := time.Now()
	_, status := ch.Call(context.Background(), "DeviceService", "Missing", nil, make([]byte, 8), 0)
	if status != StatusTimeout {
		t.Fatalf("status = %s", status)
	}
	if time.Since(start) > time.Second {
		t.Fatal("default timeout not applied")
	}
}
