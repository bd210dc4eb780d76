// Package service DeviceService 的 schema 与桩代码
// （对应 schema 生成器的输出形态）
package service

// Name rpc topic 中使用的 service 名
const Name = "DeviceService"

// SensorTelemetrySuffix 传感器遥测 topic 后缀（schema 约定）
const SensorTelemetrySuffix = "/telemetry/sensor"

type Empty struct{}

type LedRequest struct {
	On bool `msgpack:"on"`
}

type LedResponse struct {
	On bool `msgpack:"on"`
}

type EchoRequest struct {
	Msg string `msgpack:"msg"`
}

type EchoResponse struct {
	Msg string `msgpack:"msg"`
}

// EchoBlobRequest 变长字节域在解码时分配
type EchoBlobRequest struct {
	Data []byte `msgpack:"data"`
}

type EchoBlobResponse struct {
	Data []byte `msgpack:"data"`
}

type SensorRequest struct {
	IntervalMs uint32 `msgpack:"interval_ms"`
}

type SensorTelemetry struct {
	Temperature float32 `msgpack:"temperature"`
	Humidity    float32 `msgpack:"humidity"`
}

type NetworkSettings struct {
	SSID     string `msgpack:"ssid"`
	Password string `msgpack:"password"`
}
