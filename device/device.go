// Package device DeviceService 的设备侧实现：LED 状态、回显、
// 传感器遥测流和网络配置。外设以可替换接口模拟，不直接驱动硬件
package device

import (
	"sync"
	"time"

	zenohrpc "github.com/AkihiroUeda35/zenoh-rpc-go"
	"github.com/AkihiroUeda35/zenoh-rpc-go/service"
)

// DefaultSensorInterval 未指定采样间隔时使用
const DefaultSensorInterval = time.Second

type Config struct {
	DeviceID       string
	CredentialFile string // 网络凭据存储路径（NVS 的文件版）
	Logger         zenohrpc.Logger
}

var _ service.DeviceService = (*Service)(nil)

// Service DeviceService 实现。publisher 可为 nil（不发遥测/设备日志）
type Service struct {
	logger    zenohrpc.Logger
	sensorPub *zenohrpc.TelemetryPublisher[service.SensorTelemetry]
	logPub    *zenohrpc.LogPublisher
	creds     *CredentialStore

	mu        sync.Mutex
	ledOn     bool
	streaming bool
	interval  time.Duration
}

func NewService(cnf *Config,
	sensorPub *zenohrpc.TelemetryPublisher[service.SensorTelemetry],
	logPub *zenohrpc.LogPublisher) *Service {
	logger := cnf.Logger
	if logger == nil {
		logger = zenohrpc.DefaultLogger
	}
	return &Service{
		logger:    logger,
		sensorPub: sensorPub,
		logPub:    logPub,
		creds:     NewCredentialStore(cnf.CredentialFile),
		interval:  DefaultSensorInterval,
	}
}

func (s *Service) SetLed(req *service.LedRequest) (*service.LedResponse, zenohrpc.RpcStatus) {
	s.mu.Lock()
	s.ledOn = req.On
	s.mu.Unlock()

	s.logger.Infof("device: led set to %v", req.On)
	if s.logPub != nil {
		s.logPub.Infof("LED set to %v", req.On)
	}
	return &service.LedResponse{On: req.On}, zenohrpc.StatusOK
}

func (s *Service) Echo(req *service.EchoRequest) (*service.EchoResponse, zenohrpc.RpcStatus) {
	return &service.EchoResponse{Msg: req.Msg}, zenohrpc.StatusOK
}

func (s *Service) EchoBlob(req *service.EchoBlobRequest) (*service.EchoBlobResponse, zenohrpc.RpcStatus) {
	data := make([]byte, len(req.Data))
	copy(data, req.Data)
	return &service.EchoBlobResponse{Data: data}, zenohrpc.StatusOK
}

func (s *Service) StartSensorStream(req *service.SensorRequest) (*service.Empty, zenohrpc.RpcStatus) {
	interval := DefaultSensorInterval
	if req.IntervalMs > 0 {
		interval = time.Duration(req.IntervalMs) * time.Millisecond
	}

	s.mu.Lock()
	s.streaming = true
	s.interval = interval
	s.mu.Unlock()

	if s.logPub != nil {
		s.logPub.Infof("sensor streaming started, interval=%s", interval)
	}
	return &service.Empty{}, zenohrpc.StatusOK
}

func (s *Service) StopSensorStream(req *service.Empty) (*service.Empty, zenohrpc.RpcStatus) {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()

	if s.logPub != nil {
		s.logPub.Infof("sensor streaming stopped")
	}
	return &service.Empty{}, zenohrpc.StatusOK
}

func (s *Service) ConfigureNetwork(req *service.NetworkSettings) (*service.Empty, zenohrpc.RpcStatus) {
	s.logger.Infof("device: network configured: ssid=%s", req.SSID)
	if err := s.creds.Save(req); err != nil {
		s.logger.Errorf("device: save credentials: %v", err)
		return nil, zenohrpc.StatusTransportError
	}
	if s.logPub != nil {
		s.logPub.Infof("network configured: %s", req.SSID)
	}
	return &service.Empty{}, zenohrpc.StatusOK
}

// LedOn 当前 LED 状态
func (s *Service) LedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledOn
}

// StreamingEnabled 遥测流是否开启
func (s *Service) StreamingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Service) streamInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
