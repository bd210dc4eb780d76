package zenohrpc

import "time"

// DefaultMaxQueryables 应答端注册表默认容量
const DefaultMaxQueryables = 16

// DefaultCallTimeout Call 未显式指定超时时使用
const DefaultCallTimeout = 5 * time.Second

type Option func(opt *options)

type options struct {
	DeviceID      string        // 设备 id，参与 topic 构造
	MaxQueryables int           // 应答端注册表容量
	CallTimeout   time.Duration // Call 默认超时
	Logger        Logger        // logger
}

// WithDeviceID 设置设备 id
func WithDeviceID(id string) Option {
	return func(opt *options) {
		opt.DeviceID = id
	}
}

// WithMaxQueryables 设置应答端注册表容量上限
func WithMaxQueryables(n int) Option {
	return func(opt *options) {
		if n > 0 {
			opt.MaxQueryables = n
		}
	}
}

// WithCallTimeout 设置 Call 默认超时
func WithCallTimeout(t time.Duration) Option {
	return func(opt *options) {
		opt.CallTimeout = t
	}
}

// WithLogger 设置 logger
func WithLogger(logger Logger) Option {
	return func(opt *options) {
		opt.Logger = logger
	}
}
