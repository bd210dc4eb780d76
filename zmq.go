package zenohrpc

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hunyxv/utils/spinlock"
	"github.com/panjf2000/ants/v2"
	"github.com/pborman/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const chanCap = 128

type command string

const (
	_CLOSE       = command("close")
	_SUBSCRIBE   = command("subscribe")
	_UNSUBSCRIBE = command("unsubscribe")
)

// errNoQueryableMark 设备端回告 "无应答端" 的信封错误标记
const errNoQueryableMark = "no queryable for topic"

// queryEnvelope zmq 查询面的内部信封（仅 transport 内部使用，
// rpc payload 本身仍是裸 schema 字节）
type queryEnvelope struct {
	ID      string `msgpack:"id"`
	Topic   string `msgpack:"topic"`
	Payload []byte `msgpack:"payload"`
	Err     string `msgpack:"err"`
}

// socket 包装 zmq socket：收发各走一个 loop，sendLoop 通过 inproc
// PUSH/PULL 把消息汇入 mainLoop，指令走 PAIR pipe
type socket struct {
	id          string
	soctype     zmq.Type
	socket      *zmq.Socket
	endpoint    string
	recvChan    chan [][]byte
	sendChan    chan [][]byte
	commandChan chan string
	errChan     chan error
	logger      Logger

	lock    sync.Mutex
	isClose bool
}

func newZmqSocket(identity string, t zmq.Type, bind bool, endpoint string, logger Logger) (*socket, error) {
	soc, err := zmq.NewSocket(t)
	if err != nil {
		return nil, err
	}
	if identity != "" {
		soc.SetIdentity(identity)
	}
	if bind {
		if err := soc.Bind(endpoint); err != nil {
			return nil, err
		}
	} else {
		if err := soc.Connect(endpoint); err != nil {
			return nil, err
		}
	}

	s := &socket{
		id:          uuid.NewRandom().String(),
		soctype:     t,
		socket:      soc,
		endpoint:    endpoint,
		recvChan:    make(chan [][]byte, chanCap),
		sendChan:    make(chan [][]byte, chanCap),
		commandChan: make(chan string),
		errChan:     make(chan error),
		logger:      logger,
	}
	go s.mainLoop()
	go s.sendLoop()
	go func() {
		for err := range s.errChan {
			s.logger.Errorf("zenohrpc: zmq %s: %v", s.endpoint, err)
		}
	}()
	return s, nil
}

func (s *socket) mainLoop() {
	localPull, err := zmq.NewSocket(zmq.PULL)
	if err != nil {
		s.errChan <- err
		return
	}
	if err := localPull.Connect(fmt.Sprintf("inproc://local_pull_%s", s.id)); err != nil {
		s.errChan <- err
		return
	}
	defer localPull.Close()

	pipe, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		s.errChan <- err
		return
	}
	if err := pipe.Connect(fmt.Sprintf("inproc://local_pipe_%s", s.id)); err != nil {
		s.errChan <- err
		return
	}
	defer pipe.Close()

	poller := zmq.NewPoller()
	poller.Add(s.socket, zmq.POLLIN)
	poller.Add(localPull, zmq.POLLIN)
	poller.Add(pipe, zmq.POLLIN)
	for {
		polls, err := poller.Poll(-1)
		if err != nil {
			s.errChan <- err
			continue
		}

		for _, p := range polls {
			switch soc := p.Socket; soc {
			case pipe:
				cmd, err := pipe.RecvMessage(0)
				if err != nil {
					s.errChan <- err
					return
				}
				switch command(cmd[0]) {
				case _CLOSE:
					pipe.SendMessage("ok")
					s.socket.Close()
					close(s.recvChan)
					// sendLoop 此刻阻塞在 pipe 回执上，不会再写 errChan
					close(s.errChan)
					return
				case _SUBSCRIBE:
					if s.soctype == zmq.SUB {
						if err := s.socket.SetSubscribe(cmd[1]); err != nil {
							s.errChan <- err
						}
					}
					pipe.SendMessage("ok")
				case _UNSUBSCRIBE:
					if s.soctype == zmq.SUB {
						if err := s.socket.SetUnsubscribe(cmd[1]); err != nil {
							s.errChan <- err
						}
					}
					pipe.SendMessage("ok")
				}
			case localPull:
				msg, err := localPull.RecvMessageBytes(0)
				if err != nil {
					s.errChan <- err
					continue
				}
				if _, err = s.socket.SendMessage(msg); err != nil {
					s.errChan <- err
					continue
				}
			case s.socket:
				msg, err := s.socket.RecvMessageBytes(0)
				if err != nil {
					s.errChan <- err
					continue
				}
				s.recvChan <- msg
			}
		}
	}
}

func (s *socket) sendLoop() {
	localPush, err := zmq.NewSocket(zmq.PUSH)
	if err != nil {
		s.errChan <- err
		return
	}
	if err := localPush.Bind(fmt.Sprintf("inproc://local_pull_%s", s.id)); err != nil {
		s.errChan <- err
		return
	}
	defer localPush.Close()

	pipe, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		s.errChan <- err
		return
	}
	if err := pipe.Bind(fmt.Sprintf("inproc://local_pipe_%s", s.id)); err != nil {
		s.errChan <- err
		return
	}
	defer pipe.Close()

	for {
		select {
		case str := <-s.commandChan:
			array := strings.SplitN(str, " ", 2)
			if _, err := pipe.SendMessage(array); err != nil {
				s.errChan <- err
			}
			if command(array[0]) == _CLOSE {
				pipe.RecvMessage(0)
				return
			}
			if _, err := pipe.RecvMessage(0); err != nil {
				s.errChan <- err
			}
		case msg := <-s.sendChan:
			if _, err := localPush.SendMessage(msg); err != nil {
				s.errChan <- err
			}
		}
	}
}

func (s *socket) Recv() <-chan [][]byte {
	return s.recvChan
}

func (s *socket) Send(msg [][]byte) {
	s.sendChan <- msg
}

func (s *socket) Subscribe(topic string) {
	s.commandChan <- fmt.Sprintf("%s %s", _SUBSCRIBE, topic)
}

func (s *socket) Unsubscribe(topic string) {
	s.commandChan <- fmt.Sprintf("%s %s", _UNSUBSCRIBE, topic)
}

func (s *socket) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isClose {
		return
	}
	s.isClose = true
	s.commandChan <- string(_CLOSE)
}

// ZmqConfig zmq 基底配置。
// 设备侧（Server=true）：ROUTER bind 查询端点、PUB bind 发布端点；
// 工具侧（Server=false）：DEALER connect 查询端点、SUB connect 发布端点
type ZmqConfig struct {
	Identity      string
	QueryEndpoint string
	PubEndpoint   string
	Server        bool
}

// ZmqSession ZeroMQ 实现的消息基底。查询只能由客户端发往设备端，
// 查询信封用关联 id 匹配应答，重复应答被丢弃（first-wins）
type ZmqSession struct {
	cnf    *ZmqConfig
	logger Logger
	pool   *ants.Pool

	query *socket // ROUTER（设备）/ DEALER（工具）
	pub   *socket // PUB（设备）/ SUB（工具）

	lock        sync.Locker
	queryables  map[string]QueryHandler
	subscribers map[string]map[int]SampleHandler
	pending     map[string]chan *queryEnvelope
	nextSubID   int
	closed      bool
	done        chan struct{}
}

func NewZmqSession(cnf *ZmqConfig, opts ...Option) (*ZmqSession, error) {
	defOpts := &options{Logger: DefaultLogger}
	for _, f := range opts {
		f(defOpts)
	}
	if cnf.Identity == "" {
		cnf.Identity = NewQueryID()
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	s := &ZmqSession{
		cnf:         cnf,
		logger:      defOpts.Logger,
		pool:        pool,
		lock:        spinlock.NewSpinLock(),
		queryables:  make(map[string]QueryHandler),
		subscribers: make(map[string]map[int]SampleHandler),
		pending:     make(map[string]chan *queryEnvelope),
		done:        make(chan struct{}),
	}

	if cnf.Server {
		s.query, err = newZmqSocket(cnf.Identity, zmq.ROUTER, true, cnf.QueryEndpoint, s.logger)
		if err != nil {
			return nil, errors.Wrap(err, "zenohrpc: bind query endpoint")
		}
		if cnf.PubEndpoint != "" {
			s.pub, err = newZmqSocket("", zmq.PUB, true, cnf.PubEndpoint, s.logger)
			if err != nil {
				s.query.Close()
				return nil, errors.Wrap(err, "zenohrpc: bind pub endpoint")
			}
		}
		go s.serverLoop()
	} else {
		s.query, err = newZmqSocket(cnf.Identity, zmq.DEALER, false, cnf.QueryEndpoint, s.logger)
		if err != nil {
			return nil, errors.Wrap(err, "zenohrpc: connect query endpoint")
		}
		if cnf.PubEndpoint != "" {
			s.pub, err = newZmqSocket("", zmq.SUB, false, cnf.PubEndpoint, s.logger)
			if err != nil {
				s.query.Close()
				return nil, errors.Wrap(err, "zenohrpc: connect pub endpoint")
			}
			go s.subLoop()
		}
		go s.clientLoop()
	}
	return s, nil
}

// serverLoop 设备侧读任务：ROUTER 帧为 [identity, envelope]，
// 查询分发到工作池执行，找不到应答端时回带错误标记的信封
func (s *ZmqSession) serverLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.query.Recv():
			if !ok {
				return
			}
			if len(msg) < 2 {
				s.logger.Warnf("zenohrpc: zmq server: short frame (%d parts)", len(msg))
				continue
			}
			identity := msg[0]
			var env queryEnvelope
			if err := msgpack.Unmarshal(msg[len(msg)-1], &env); err != nil {
				s.logger.Errorf("zenohrpc: zmq server: bad envelope: %v", err)
				continue
			}

			s.lock.Lock()
			handler, ok := s.queryables[env.Topic]
			s.lock.Unlock()
			if !ok {
				s.replyEnvelope(identity, &queryEnvelope{
					ID: env.ID, Topic: env.Topic, Err: errNoQueryableMark,
				})
				continue
			}

			err := s.pool.Submit(func() {
				q := &zmqQuery{session: s, identity: identity, env: &env}
				handler(q)
			})
			if err != nil {
				s.logger.Errorf("zenohrpc: zmq server: submit: %v", err)
			}
		}
	}
}

// clientLoop 工具侧读任务：按关联 id 命中 pending 查询，多余应答丢弃
func (s *ZmqSession) clientLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.query.Recv():
			if !ok {
				return
			}
			var env queryEnvelope
			if err := msgpack.Unmarshal(msg[len(msg)-1], &env); err != nil {
				s.logger.Errorf("zenohrpc: zmq client: bad envelope: %v", err)
				continue
			}

			s.lock.Lock()
			ch, ok := s.pending[env.ID]
			if ok {
				delete(s.pending, env.ID)
			}
			s.lock.Unlock()
			if !ok {
				s.logger.Debugf("zenohrpc: zmq client: stray reply %s dropped", env.ID)
				continue
			}
			ch <- &env
		}
	}
}

// subLoop 工具侧订阅任务：SUB 帧为 [topic, payload]
func (s *ZmqSession) subLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.pub.Recv():
			if !ok {
				return
			}
			if len(msg) != 2 {
				continue
			}
			topic, payload := string(msg[0]), msg[1]

			s.lock.Lock()
			var handlers []SampleHandler
			for _, h := range s.subscribers[topic] {
				handlers = append(handlers, h)
			}
			s.lock.Unlock()

			for _, h := range handlers {
				h := h
				if err := s.pool.Submit(func() { h(topic, NewBytesReader(payload)) }); err != nil {
					s.logger.Errorf("zenohrpc: zmq sub: submit: %v", err)
				}
			}
		}
	}
}

func (s *ZmqSession) replyEnvelope(identity []byte, env *queryEnvelope) {
	b, err := msgpack.Marshal(env)
	if err != nil {
		s.logger.Errorf("zenohrpc: zmq: marshal envelope: %v", err)
		return
	}
	s.query.Send([][]byte{identity, b})
}

func (s *ZmqSession) NewWriter() ByteWriter {
	return NewChunkWriter()
}

func (s *ZmqSession) DeclarePublisher(topic string) (Publisher, error) {
	if !s.cnf.Server || s.pub == nil {
		return nil, errors.New("zenohrpc: publish plane requires server role with pub endpoint")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return &zmqPublisher{session: s, topic: topic}, nil
}

func (s *ZmqSession) DeclareSubscriber(topic string, handler SampleHandler) (Subscriber, error) {
	if s.cnf.Server || s.pub == nil {
		return nil, errors.New("zenohrpc: subscribe requires client role with pub endpoint")
	}
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
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
	s.lock.Unlock()

	s.pub.Subscribe(topic)
	return &zmqSubscriber{session: s, topic: topic, id: id}, nil
}

func (s *ZmqSession) DeclareQueryable(topic string, handler QueryHandler) (Queryable, error) {
	if !s.cnf.Server {
		return nil, errors.New("zenohrpc: queryable requires server role")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if _, ok := s.queryables[topic]; ok {
		return nil, errors.Errorf("zenohrpc: queryable exists for topic %s", topic)
	}
	s.queryables[topic] = handler
	return &zmqQueryable{session: s, topic: topic}, nil
}

// Query 同步查询：信封发往设备端，按关联 id 等首个应答或超时
func (s *ZmqSession) Query(ctx context.Context, topic string, payload []byte, timeout time.Duration) (Reply, error) {
	if s.cnf.Server {
		return nil, errors.New("zenohrpc: query requires client role")
	}

	env := &queryEnvelope{ID: NewQueryID(), Topic: topic, Payload: payload}
	b, err := msgpack.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "zenohrpc: marshal envelope")
	}

	ch := make(chan *queryEnvelope, 1)
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil, ErrSessionClosed
	}
	s.pending[env.ID] = ch
	s.lock.Unlock()

	s.query.Send([][]byte{b})

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
		s.dropPending(env.ID)
		return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
	case <-t.C:
		s.dropPending(env.ID)
		return nil, ErrTimeout
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrSessionClosed
		}
		if reply.Err == errNoQueryableMark {
			return nil, errors.Wrap(ErrNoQueryable, topic)
		}
		if reply.Err != "" {
			return nil, errors.Wrap(ErrReplyError, reply.Err)
		}
		return &bytesReply{payload: reply.Payload}, nil
	}
}

func (s *ZmqSession) dropPending(id string) {
	s.lock.Lock()
	delete(s.pending, id)
	s.lock.Unlock()
}

func (s *ZmqSession) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.queryables = make(map[string]QueryHandler)
	s.subscribers = make(map[string]map[int]SampleHandler)
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.lock.Unlock()

	close(s.done)
	s.query.Close()
	if s.pub != nil {
		s.pub.Close()
	}
	s.pool.Release()
	return nil
}

type zmqPublisher struct {
	session *ZmqSession
	topic   string
}

func (p *zmqPublisher) Topic() string { return p.topic }

func (p *zmqPublisher) Put(w ByteWriter) error {
	payload, err := w.Finish()
	if err != nil {
		return err
	}
	return p.PutBytes(payload)
}

func (p *zmqPublisher) PutBytes(b []byte) error {
	s := p.session
	s.lock.Lock()
	closed := s.closed
	s.lock.Unlock()
	if closed {
		return ErrSessionClosed
	}
	s.pub.Send([][]byte{[]byte(p.topic), b})
	return nil
}

func (p *zmqPublisher) Undeclare() error { return nil }

type zmqSubscriber struct {
	session *ZmqSession
	topic   string
	id      int
}

func (sub *zmqSubscriber) Undeclare() error {
	s := sub.session
	s.lock.Lock()
	last := false
	if subs, ok := s.subscribers[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(s.subscribers, sub.topic)
			last = true
		}
	}
	s.lock.Unlock()
	if last {
		s.pub.Unsubscribe(sub.topic)
	}
	return nil
}

type zmqQueryable struct {
	session *ZmqSession
	topic   string
}

func (q *zmqQueryable) Undeclare() error {
	s := q.session
	s.lock.Lock()
	delete(s.queryables, q.topic)
	s.lock.Unlock()
	return nil
}

// zmqQuery 设备侧在途查询；handler 正常结束时 Reply 把 sink 定稿发回，
// 否则不产生任何应答（客户端侧表现为超时）
type zmqQuery struct {
	session  *ZmqSession
	identity []byte
	env      *queryEnvelope
	replied  bool
}

func (q *zmqQuery) Topic() string { return q.env.Topic }

func (q *zmqQuery) Payload() ByteReader {
	return NewBytesReader(q.env.Payload)
}

func (q *zmqQuery) Reply(w ByteWriter) error {
	payload, err := w.Finish()
	if err != nil {
		return err
	}
	if q.replied {
		return errors.New("zenohrpc: query already replied")
	}
	q.replied = true
	q.session.replyEnvelope(q.identity, &queryEnvelope{
		ID: q.env.ID, Topic: q.env.Topic, Payload: payload,
	})
	return nil
}
