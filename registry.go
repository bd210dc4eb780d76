package zenohrpc

import "time"

// 注册设备信息时使用 json 序列化，便于人工查看

// DeviceInfo 设备在注册中心公布的元数据
type DeviceInfo struct {
	DeviceID string   `json:"device_id"`
	Services []string `json:"services"` // 已注册的 rpc service 名
	Endpoint string   `json:"endpoint"` // 查询面端点
}

// RegisterConfig 设备注册所需配置
type RegisterConfig struct {
	Registries      []string      // 注册中心 endpoint
	DevicePrefix    string        // 注册键前缀
	HeartBeatPeriod time.Duration // 心跳/租约间隔
	DeviceInfo      DeviceInfo
	Logger          Logger
}

// DeviceRegister 设备注册：按租约/TTL 心跳维持在线状态
type DeviceRegister interface {
	// Register 注册并保持心跳，阻塞直到 Deregister
	Register()
	// Deregister 注销设备
	Deregister()
}

// DiscoverConfig 设备发现所需配置
type DiscoverConfig struct {
	Registries   []string // 注册中心 endpoint
	DevicePrefix string   // 注册键前缀
	Logger       Logger
}

// DeviceDiscover 设备发现
type DeviceDiscover interface {
	// Watch 监控设备上下线
	Watch(callback WatchCallback)
	// Stop 停止监控
	Stop()
}

// WatchCallback 设备变更事件回调
type WatchCallback interface {
	AddOrUpdate(deviceID string, metadata []byte) error
	Delete(deviceID string)
}
