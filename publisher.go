package zenohrpc

import (
	"fmt"
	"time"
)

// TelemetryPublisher 绑定单 topic、单 schema 的类型化发布端（单向遥测用）。
// 声明失败时 valid 为 false，之后所有 Publish 直接返回 false
type TelemetryPublisher[T any] struct {
	session Session
	pub     Publisher
	logger  Logger
	valid   bool
}

// NewTelemetryPublisher topic 为 "{device_id}{topic_suffix}"
func NewTelemetryPublisher[T any](session Session, deviceID, topicSuffix string, opts ...Option) *TelemetryPublisher[T] {
	defOpts := &options{Logger: DefaultLogger}
	for _, f := range opts {
		f(defOpts)
	}

	tp := &TelemetryPublisher[T]{session: session, logger: defOpts.Logger}
	topic, err := BuildTelemetryTopic(deviceID, topicSuffix)
	if err != nil {
		tp.logger.Errorf("zenohrpc: telemetry topic: %v", err)
		return tp
	}

	pub, err := session.DeclarePublisher(topic)
	if err != nil {
		tp.logger.Errorf("zenohrpc: declare publisher %s: %v", topic, err)
		return tp
	}
	tp.pub = pub
	tp.valid = true
	return tp
}

// Valid 发布端是否声明成功
func (tp *TelemetryPublisher[T]) Valid() bool {
	return tp.valid
}

// Publish 把消息流式编码进 transport 的 writer 后发布，
// 编码或提交失败返回 false。除绑定的 topic/schema 外无状态
func (tp *TelemetryPublisher[T]) Publish(msg T) bool {
	if !tp.valid {
		return false
	}

	writer := tp.session.NewWriter()
	if err := EncodeTo(writer, msg); err != nil {
		tp.logger.Errorf("zenohrpc: telemetry encode: %v", err)
		return false
	}
	if err := tp.pub.Put(writer); err != nil {
		tp.logger.Errorf("zenohrpc: telemetry put: %v", err)
		return false
	}
	return true
}

// Undeclare 注销发布端
func (tp *TelemetryPublisher[T]) Undeclare() error {
	if !tp.valid {
		return nil
	}
	tp.valid = false
	return tp.pub.Undeclare()
}

// LogLevel 设备日志级别
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// LogRecord "{device_id}/log" topic 上的日志载荷
type LogRecord struct {
	Level     string `msgpack:"level"`
	Message   string `msgpack:"message"`
	Timestamp int64  `msgpack:"timestamp"`
}

// LogPublisher 设备日志发布端，publisher 无效时所有调用静默返回
type LogPublisher struct {
	session Session
	pub     Publisher
	logger  Logger
	valid   bool
}

func NewLogPublisher(session Session, deviceID string, opts ...Option) *LogPublisher {
	defOpts := &options{Logger: DefaultLogger}
	for _, f := range opts {
		f(defOpts)
	}

	lp := &LogPublisher{session: session, logger: defOpts.Logger}
	topic, err := BuildLogTopic(deviceID)
	if err != nil {
		lp.logger.Errorf("zenohrpc: log topic: %v", err)
		return lp
	}

	pub, err := session.DeclarePublisher(topic)
	if err != nil {
		lp.logger.Errorf("zenohrpc: declare log publisher %s: %v", topic, err)
		return lp
	}
	lp.pub = pub
	lp.valid = true
	return lp
}

func (lp *LogPublisher) Valid() bool {
	return lp.valid
}

// Logf 发布一条设备日志
func (lp *LogPublisher) Logf(level LogLevel, format string, args ...interface{}) bool {
	if !lp.valid {
		return false
	}
	rec := LogRecord{
		Level:     level.String(),
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UnixMilli(),
	}
	writer := lp.session.NewWriter()
	if err := EncodeTo(writer, rec); err != nil {
		lp.logger.Errorf("zenohrpc: log encode: %v", err)
		return false
	}
	if err := lp.pub.Put(writer); err != nil {
		lp.logger.Errorf("zenohrpc: log put: %v", err)
		return false
	}
	return true
}

func (lp *LogPublisher) Debugf(format string, args ...interface{}) { lp.Logf(LogDebug, format, args...) }
func (lp *LogPublisher) Infof(format string, args ...interface{})  { lp.Logf(LogInfo, format, args...) }
func (lp *LogPublisher) Warnf(format string, args ...interface{})  { lp.Logf(LogWarn, format, args...) }
func (lp *LogPublisher) Errorf(format string, args ...interface{}) { lp.Logf(LogError, format, args...) }

// Undeclare 注销发布端
func (lp *LogPublisher) Undeclare() error {
	if !lp.valid {
		return nil
	}
	lp.valid = false
	return lp.pub.Undeclare()
}
