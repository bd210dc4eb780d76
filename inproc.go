package zenohrpc

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/hunyxv/utils/spinlock"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

var timers = sync.Pool{
	New: func() interface{} {
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t
	},
}

// InprocSession 进程内消息基底，用于测试和同进程回环。
// 每个 topic 只允许一个应答端（single-responder），查询回调在
// 工作池上执行，与调用方并发
type InprocSession struct {
	logger Logger
	pool   *ants.Pool

	lock        sync.Locker
	queryables  map[string]QueryHandler
	subscribers map[string]map[int]SampleHandler
	nextSubID   int
	closed      bool
}

func NewInprocSession(opts ...Option) (*InprocSession, error) {
	defOpts := &options{Logger: DefaultLogger}
	for _, f := range opts {
		f(defOpts)
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	return &InprocSession{
		logger:      defOpts.Logger,
		pool:        pool,
		lock:        spinlock.NewSpinLock(),
		queryables:  make(map[string]QueryHandler),
		subscribers: make(map[string]map[int]SampleHandler),
	}, nil
}

func (s *InprocSession) NewWriter() ByteWriter {
	return NewChunkWriter()
}

// DeclarePublisher 声明发布端；inproc 下只校验会话状态并绑定 topic
func (s *InprocSession) DeclarePublisher(topic string) (Publisher, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return &inprocPublisher{session: s, topic: topic}, nil
}

// DeclareSubscriber 订阅 topic（精确匹配，不支持通配）
func (s *InprocSession) DeclareSubscriber(topic string, handler SampleHandler) (Subscriber, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	subs, ok := s.subscribers[topic]
	if !ok {
		subs = make(map[int]SampleHandler)
		s.subscribers[topic] = subs
	}
	s.nextSubID++
	id := s.nextSubID
	subs[id] = handler
	return &inprocSubscriber{session: s, topic: topic, id: id}, nil
}

// DeclareQueryable 注册应答端，同一 topic 重复声明报错
func (s *InprocSession) DeclareQueryable(topic string, handler QueryHandler) (Queryable, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if _, ok := s.queryables[topic]; ok {
		return nil, errors.Errorf("zenohrpc: queryable exists for topic %s", topic)
	}
	s.queryables[topic] = handler
	return &inprocQueryable{session: s, topic: topic}, nil
}

// Query 同步查询。无应答端时与真实基底行为一致：等满超时返回 ErrTimeout。
// 应答端产生的首个应答胜出
func (s *InprocSession) Query(ctx context.Context, topic string, payload []byte, timeout time.Duration) (Reply, error) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil, ErrSessionClosed
	}
	handler, ok := s.queryables[topic]
	s.lock.Unlock()

	replyCh := make(chan []byte, 1)
	if ok {
		q := &inprocQuery{topic: topic, payload: payload, replyCh: replyCh}
		if err := s.pool.Submit(func() { handler(q) }); err != nil {
			return nil, errors.Wrap(err, "zenohrpc: submit query")
		}
	}

	t := timers.Get().(*time.Timer)
	t.Reset(timeout)
	defer func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		timers.Put(t)
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
	case <-t.C:
		return nil, ErrTimeout
	case b := <-replyCh:
		return &bytesReply{payload: b}, nil
	}
}

func (s *InprocSession) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.queryables = make(map[string]QueryHandler)
	s.subscribers = make(map[string]map[int]SampleHandler)
	s.pool.Release()
	return nil
}

func (s *InprocSession) undeclareQueryable(topic string) {
	s.lock.Lock()
	delete(s.queryables, topic)
	s.lock.Unlock()
}

func (s *InprocSession) unsubscribe(topic string, id int) {
	s.lock.Lock()
	if subs, ok := s.subscribers[topic]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(s.subscribers, topic)
		}
	}
	s.lock.Unlock()
}

func (s *InprocSession) publish(topic string, payload []byte) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return ErrSessionClosed
	}
	var handlers []SampleHandler
	for _, h := range s.subscribers[topic] {
		handlers = append(handlers, h)
	}
	s.lock.Unlock()

	for _, h := range handlers {
		h := h
		if err := s.pool.Submit(func() { h(topic, NewBytesReader(payload)) }); err != nil {
			return errors.Wrap(err, "zenohrpc: submit sample")
		}
	}
	return nil
}

type inprocPublisher struct {
	session *InprocSession
	topic   string
}

func (p *inprocPublisher) Topic() string { return p.topic }

func (p *inprocPublisher) Put(w ByteWriter) error {
	payload, err := w.Finish()
	if err != nil {
		return err
	}
	return p.session.publish(p.topic, payload)
}

func (p *inprocPublisher) PutBytes(b []byte) error {
	return p.session.publish(p.topic, b)
}

func (p *inprocPublisher) Undeclare() error { return nil }

type inprocSubscriber struct {
	session *InprocSession
	topic   string
	id      int
}

func (s *inprocSubscriber) Undeclare() error {
	s.session.unsubscribe(s.topic, s.id)
	return nil
}

type inprocQueryable struct {
	session *InprocSession
	topic   string
}

func (q *inprocQueryable) Undeclare() error {
	q.session.undeclareQueryable(q.topic)
	return nil
}

type inprocQuery struct {
	topic   string
	payload []byte
	replyCh chan []byte
	replied bool
}

func (q *inprocQuery) Topic() string { return q.topic }

func (q *inprocQuery) Payload() ByteReader {
	return NewBytesReader(q.payload)
}

func (q *inprocQuery) Reply(w ByteWriter) error {
	payload, err := w.Finish()
	if err != nil {
		return err
	}
	if q.replied {
		return errors.New("zenohrpc: query already replied")
	}
	q.replied = true
	select {
	case q.replyCh <- payload:
		return nil
	default:
		return errors.New("zenohrpc: reply channel full")
	}
}

