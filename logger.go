package zenohrpc

import "log"

// Logger 各组件通用日志接口，默认实现走标准库 log
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger 标准库 log 实现
var DefaultLogger Logger = stdLogger{}

type stdLogger struct{}

func (stdLogger) Debugf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
func (stdLogger) Infof(format string, args ...interface{}) {
	log.Printf(format, args...)
}
func (stdLogger) Warnf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
func (stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
