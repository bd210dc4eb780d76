package service

import (
	"context"
	"time"

	zenohrpc "github.com/AkihiroUeda35/zenoh-rpc-go"
)

// DefaultResponseBufSize 每次调用的应答缓冲上限
const DefaultResponseBufSize = 4096

// DeviceServiceClient DeviceService 的类型化代理：
// 每次调用做一次请求预编码和一次有界应答解码
type DeviceServiceClient struct {
	ch          *zenohrpc.RpcChannel
	respBufSize int
}

func NewDeviceServiceClient(ch *zenohrpc.RpcChannel) *DeviceServiceClient {
	return &DeviceServiceClient{ch: ch, respBufSize: DefaultResponseBufSize}
}

// WithResponseBufSize 设置应答缓冲大小（超过该大小的应答返回 DECODE_ERROR）
func (c *DeviceServiceClient) WithResponseBufSize(n int) *DeviceServiceClient {
	if n > 0 {
		c.respBufSize = n
	}
	return c
}

func (c *DeviceServiceClient) call(ctx context.Context, method string, req, resp interface{}, timeout time.Duration) zenohrpc.RpcStatus {
	reqBytes, err := zenohrpc.EncodeBytes(req)
	if err != nil {
		return zenohrpc.StatusEncodeError
	}

	buf := make([]byte, c.respBufSize)
	n, status := c.ch.Call(ctx, Name, method, reqBytes, buf, timeout)
	if status != zenohrpc.StatusOK {
		return status
	}

	if err := zenohrpc.DecodeBytes(buf[:n], resp); err != nil {
		return zenohrpc.StatusDecodeError
	}
	return zenohrpc.StatusOK
}

func (c *DeviceServiceClient) SetLed(ctx context.Context, req *LedRequest, timeout time.Duration) (*LedResponse, zenohrpc.RpcStatus) {
	var resp LedResponse
	if status := c.call(ctx, "SetLed", req, &resp, timeout); status != zenohrpc.StatusOK {
		return nil, status
	}
	return &resp, zenohrpc.StatusOK
}

func (c *DeviceServiceClient) Echo(ctx context.Context, req *EchoRequest, timeout time.Duration) (*EchoResponse, zenohrpc.RpcStatus) {
	var resp EchoResponse
	if status := c.call(ctx, "Echo", req, &resp, timeout); status != zenohrpc.StatusOK {
		return nil, status
	}
	return &resp, zenohrpc.StatusOK
}

func (c *DeviceServiceClient) EchoBlob(ctx context.Context, req *EchoBlobRequest, timeout time.Duration) (*EchoBlobResponse, zenohrpc.RpcStatus) {
	var resp EchoBlobResponse
	if status := c.call(ctx, "EchoBlob", req, &resp, timeout); status != zenohrpc.StatusOK {
		return nil, status
	}
	return &resp, zenohrpc.StatusOK
}

func (c *DeviceServiceClient) StartSensorStream(ctx context.Context, req *SensorRequest, timeout time.Duration) (*Empty, zenohrpc.RpcStatus) {
	var resp Empty
	if status := c.call(ctx, "StartSensorStream", req, &resp, timeout); status != zenohrpc.StatusOK {
		return nil, status
	}
	return &resp, zenohrpc.StatusOK
}

func (c *DeviceServiceClient) StopSensorStream(ctx context.Context, timeout time.Duration) (*Empty, zenohrpc.RpcStatus) {
	var resp Empty
	if status := c.call(ctx, "StopSensorStream", &Empty{}, &resp, timeout); status != zenohrpc.StatusOK {
		return nil, status
	}
	return &resp, zenohrpc.StatusOK
}

func (c *DeviceServiceClient) ConfigureNetwork(ctx context.Context, req *NetworkSettings, timeout time.Duration) (*Empty, zenohrpc.RpcStatus) {
	var resp Empty
	if status := c.call(ctx, "ConfigureNetwork", req, &resp, timeout); status != zenohrpc.StatusOK {
		return nil, status
	}
	return &resp, zenohrpc.StatusOK
}
