package service

import (
	"github.com/pkg/errors"

	zenohrpc "github.com/AkihiroUeda35/zenoh-rpc-go"
)

// DeviceService 业务实现接口。实现方法在 session 读任务上执行，
// 须保持简短、同步、不阻塞，且不得发起嵌套 rpc 调用
type DeviceService interface {
	SetLed(req *LedRequest) (*LedResponse, zenohrpc.RpcStatus)
	Echo(req *EchoRequest) (*EchoResponse, zenohrpc.RpcStatus)
	EchoBlob(req *EchoBlobRequest) (*EchoBlobResponse, zenohrpc.RpcStatus)
	StartSensorStream(req *SensorRequest) (*Empty, zenohrpc.RpcStatus)
	StopSensorStream(req *Empty) (*Empty, zenohrpc.RpcStatus)
	ConfigureNetwork(req *NetworkSettings) (*Empty, zenohrpc.RpcStatus)
}

// RegisterDeviceServiceServer 注册 DeviceService 全部方法。
// 任一方法注册失败则整体报错，但已注册的方法保持生效（不回滚）
func RegisterDeviceServiceServer(ch *zenohrpc.RpcChannel, impl DeviceService) error {
	srv := &deviceServiceServer{impl: impl}

	methods := []struct {
		name    string
		handler zenohrpc.RequestHandler
	}{
		{"SetLed", srv.handleSetLed},
		{"Echo", srv.handleEcho},
		{"EchoBlob", srv.handleEchoBlob},
		{"StartSensorStream", srv.handleStartSensorStream},
		{"StopSensorStream", srv.handleStopSensorStream},
		{"ConfigureNetwork", srv.handleConfigureNetwork},
	}

	var failed []string
	var firstErr error
	for _, m := range methods {
		if err := ch.RegisterHandler(Name, m.name, m.handler); err != nil {
			failed = append(failed, m.name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return errors.Wrapf(firstErr, "register %s: failed methods %v", Name, failed)
	}
	return nil
}

type deviceServiceServer struct {
	impl DeviceService
}

// 每个 handler 都是同一条解码-调用-编码流水：
// 解码失败不触达业务逻辑，业务非 OK 原样上抛不编码，编码失败返回 ENCODE_ERROR

func (s *deviceServiceServer) handleSetLed(req zenohrpc.ByteReader, resp zenohrpc.ByteWriter) zenohrpc.RpcStatus {
	var request LedRequest
	if err := zenohrpc.DecodeFrom(req, &request); err != nil {
		return zenohrpc.StatusDecodeError
	}

	response, status := s.impl.SetLed(&request)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.EncodeTo(resp, response); err != nil {
		return zenohrpc.StatusEncodeError
	}
	return zenohrpc.StatusOK
}

func (s *deviceServiceServer) handleEcho(req zenohrpc.ByteReader, resp zenohrpc.ByteWriter) zenohrpc.RpcStatus {
	var request EchoRequest
	if err := zenohrpc.DecodeFrom(req, &request); err != nil {
		return zenohrpc.StatusDecodeError
	}

	response, status := s.impl.Echo(&request)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.EncodeTo(resp, response); err != nil {
		return zenohrpc.StatusEncodeError
	}
	return zenohrpc.StatusOK
}

func (s *deviceServiceServer) handleEchoBlob(req zenohrpc.ByteReader, resp zenohrpc.ByteWriter) zenohrpc.RpcStatus {
	var request EchoBlobRequest
	if err := zenohrpc.DecodeFrom(req, &request); err != nil {
		return zenohrpc.StatusDecodeError
	}

	response, status := s.impl.EchoBlob(&request)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.EncodeTo(resp, response); err != nil {
		return zenohrpc.StatusEncodeError
	}
	return zenohrpc.StatusOK
}

func (s *deviceServiceServer) handleStartSensorStream(req zenohrpc.ByteReader, resp zenohrpc.ByteWriter) zenohrpc.RpcStatus {
	var request SensorRequest
	if err := zenohrpc.DecodeFrom(req, &request); err != nil {
		return zenohrpc.StatusDecodeError
	}

	response, status := s.impl.StartSensorStream(&request)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.EncodeTo(resp, response); err != nil {
		return zenohrpc.StatusEncodeError
	}
	return zenohrpc.StatusOK
}

func (s *deviceServiceServer) handleStopSensorStream(req zenohrpc.ByteReader, resp zenohrpc.ByteWriter) zenohrpc.RpcStatus {
	var request Empty
	if err := zenohrpc.DecodeFrom(req, &request); err != nil {
		return zenohrpc.StatusDecodeError
	}

	response, status := s.impl.StopSensorStream(&request)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.EncodeTo(resp, response); err != nil {
		return zenohrpc.StatusEncodeError
	}
	return zenohrpc.StatusOK
}

func (s *deviceServiceServer) handleConfigureNetwork(req zenohrpc.ByteReader, resp zenohrpc.ByteWriter) zenohrpc.RpcStatus {
	var request NetworkSettings
	if err := zenohrpc.DecodeFrom(req, &request); err != nil {
		return zenohrpc.StatusDecodeError
	}

	response, status := s.impl.ConfigureNetwork(&request)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.EncodeTo(resp, response); err != nil {
		return zenohrpc.StatusEncodeError
	}
	return zenohrpc.StatusOK
}
