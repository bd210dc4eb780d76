package zenohrpc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTableFull      = errors.New("zenohrpc: queryable table is full")
	ErrDuplicateTopic = errors.New("zenohrpc: handler already registered for topic")
	ErrChannelClosed  = errors.New("zenohrpc: channel closed")
)

// RequestHandler 服务端原始 handler 契约：
// 从 req 解码、处理、把应答编码进 resp，任何非 OK 状态都不会发出应答
type RequestHandler func(req ByteReader, resp ByteWriter) RpcStatus

// queryableEntry 注册表槽位
type queryableEntry struct {
	active    bool
	topic     string
	handler   RequestHandler
	queryable Queryable
}

// RpcChannel rpc 通道（客户端与服务端共用）：
// 客户端侧发起同步查询；服务端侧持有固定容量的 topic->handler 注册表
type RpcChannel struct {
	session Session
	opts    *options

	mutex   sync.Mutex
	entries []queryableEntry
	count   int
	closed  bool
}

func NewRpcChannel(session Session, opts ...Option) *RpcChannel {
	defOpts := &options{
		MaxQueryables: DefaultMaxQueryables,
		CallTimeout:   DefaultCallTimeout,
		Logger:        DefaultLogger,
	}
	for _, f := range opts {
		f(defOpts)
	}

	return &RpcChannel{
		session: session,
		opts:    defOpts,
		entries: make([]queryableEntry, defOpts.MaxQueryables),
	}
}

// DeviceID 通道绑定的设备 id（可为空）
func (c *RpcChannel) DeviceID() string {
	return c.opts.DeviceID
}

// Session 底层会话
func (c *RpcChannel) Session() Session {
	return c.session
}

// Call 客户端同步调用：request 为预编码请求，应答完整拷入 response。
// 返回应答长度和状态；应答超过 len(response) 时返回 StatusDecodeError
// 且不做部分拷贝。本层不做重试，超时是唯一的取消手段
func (c *RpcChannel) Call(ctx context.Context, serviceName, methodName string,
	request []byte, response []byte, timeout time.Duration) (int, RpcStatus) {
	if timeout <= 0 {
		timeout = c.opts.CallTimeout
	}

	topic, err := BuildTopic(c.opts.DeviceID, serviceName, methodName)
	if err != nil {
		c.opts.Logger.Errorf("zenohrpc: build topic: %v", err)
		return 0, StatusTransportError
	}

	ctx, span := startCallSpan(ctx, topic)
	status := StatusOK
	defer func() { endCallSpan(span, status) }()

	reply, err := c.session.Query(ctx, topic, request, timeout)
	if err != nil {
		switch {
		case errors.Is(err, ErrTimeout):
			c.opts.Logger.Warnf("zenohrpc: %s: no reply received", topic)
			status = StatusTimeout
		case errors.Is(err, ErrNoQueryable):
			c.opts.Logger.Warnf("zenohrpc: %s: no responder", topic)
			status = StatusNotFound
		case errors.Is(err, ErrReplyError):
			c.opts.Logger.Errorf("zenohrpc: %s: reply error", topic)
			status = StatusTransportError
		default:
			c.opts.Logger.Errorf("zenohrpc: %s: query failed: %v", topic, err)
			status = StatusTransportError
		}
		return 0, status
	}

	payload := reply.Payload()
	n := payload.Remaining()
	if n > len(response) {
		c.opts.Logger.Errorf("zenohrpc: %s: response buffer too small: need %d, have %d",
			topic, n, len(response))
		status = StatusDecodeError
		return 0, status
	}
	if _, err := io.ReadFull(payload, response[:n]); err != nil {
		c.opts.Logger.Errorf("zenohrpc: %s: read reply: %v", topic, err)
		status = StatusTransportError
		return 0, status
	}
	return n, StatusOK
}

// RegisterHandler 为 (service, method) 注册应答端。
// 注册表满、topic 重复、topic 构造失败、声明失败时报错，失败不留副作用。
// 注册须在 dispatch 开始前完成，运行中变更注册表属未定义行为
func (c *RpcChannel) RegisterHandler(serviceName, methodName string, handler RequestHandler) error {
	topic, err := BuildTopic(c.opts.DeviceID, serviceName, methodName)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.count >= len(c.entries) {
		return errors.Wrap(ErrTableFull, topic)
	}

	slot := -1
	for i := range c.entries {
		if c.entries[i].active {
			if c.entries[i].topic == topic {
				return errors.Wrap(ErrDuplicateTopic, topic)
			}
			continue
		}
		if slot < 0 {
			slot = i
		}
	}
	if slot < 0 {
		return errors.Wrap(ErrTableFull, topic)
	}

	entry := &c.entries[slot]
	queryable, err := c.session.DeclareQueryable(topic, func(q Query) {
		c.dispatch(topic, handler, q)
	})
	if err != nil {
		return errors.Wrapf(err, "declare queryable %s", topic)
	}

	entry.active = true
	entry.topic = topic
	entry.handler = handler
	entry.queryable = queryable
	c.count++
	c.opts.Logger.Infof("zenohrpc: registered handler for %s", topic)
	return nil
}

// dispatch 在 session 读任务上下文中执行：包装查询 payload 为字节源、
// 准备应答 sink、调用 handler。任何失败都只记录日志并放弃应答
// （客户端表现为超时），不会向 transport 层传播
func (c *RpcChannel) dispatch(topic string, handler RequestHandler, q Query) {
	sink := c.session.NewWriter()

	status := handler(q.Payload(), sink)
	if status != StatusOK {
		c.opts.Logger.Errorf("zenohrpc: %s: handler returned %s, reply abandoned", topic, status)
		return
	}

	if err := q.Reply(sink); err != nil {
		c.opts.Logger.Errorf("zenohrpc: %s: reply failed: %v", topic, err)
	}
}

// ActiveQueryables 当前活跃应答端数量
func (c *RpcChannel) ActiveQueryables() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.count
}

// Close 注销全部应答端并清空注册表，可重复调用
func (c *RpcChannel) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for i := range c.entries {
		if !c.entries[i].active {
			continue
		}
		if err := c.entries[i].queryable.Undeclare(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.entries[i] = queryableEntry{}
	}
	c.count = 0
	return firstErr
}
