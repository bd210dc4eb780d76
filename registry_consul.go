package zenohrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"
)

const consulDeviceTag = "zenoh-rpc-device"

// consulRetryWait 阻塞查询出错后的重试间隔，避免 agent 不可用时空转
var consulRetryWait = time.Second

type consulRegister struct {
	ctx    context.Context
	cancel context.CancelFunc

	metadata map[string]string
	checkID  string
	cnf      *RegisterConfig
	client   *consulapi.Client
}

// NewConsulRegister consul 设备注册
func NewConsulRegister(cnf *RegisterConfig) (DeviceRegister, error) {
	if cnf.Logger == nil {
		cnf.Logger = DefaultLogger
	}

	consulConfig := consulapi.DefaultConfig()
	consulConfig.Address = strings.Join(cnf.Registries, ",")
	consulClient, err := consulapi.NewClient(consulConfig)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"device_id": cnf.DeviceInfo.DeviceID,
		"services":  strings.Join(cnf.DeviceInfo.Services, ","),
		"endpoint":  cnf.DeviceInfo.Endpoint,
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &consulRegister{
		ctx:    ctx,
		cancel: cancel,

		metadata: metadata,
		checkID:  "service:" + cnf.DeviceInfo.DeviceID,
		cnf:      cnf,
		client:   consulClient,
	}, nil
}

// Register 注册设备并以 TTL check 心跳维持在线状态，阻塞直到 Deregister
func (cr *consulRegister) Register() {
	registration := &consulapi.AgentServiceRegistration{
		Kind: consulapi.ServiceKindTypical,
		Meta: cr.metadata,
		ID:   cr.cnf.DeviceInfo.DeviceID,
		Name: strings.TrimPrefix(cr.cnf.DevicePrefix, "/"),
		Tags: []string{consulDeviceTag},
		Check: &consulapi.AgentServiceCheck{
			Name:                           "device-heartbeat",
			TTL:                            fmt.Sprintf("%ds", int(cr.cnf.HeartBeatPeriod.Seconds())*3),
			DeregisterCriticalServiceAfter: "30s",
		},
	}
	if err := cr.client.Agent().ServiceRegister(registration); err != nil {
		cr.cnf.Logger.Warnf("consul register: registry fail, err: %v", err)
	}

	tick := time.NewTicker(cr.cnf.HeartBeatPeriod)
	defer tick.Stop()
	for {
		select {
		case <-cr.ctx.Done():
			return
		case <-tick.C:
			if err := cr.client.Agent().UpdateTTL(cr.checkID, "", consulapi.HealthPassing); err != nil {
				cr.cnf.Logger.Warnf("consul register: device: %s ttl update fail, err: %v",
					cr.cnf.DeviceInfo.DeviceID, err)
			}
		}
	}
}

// Deregister 注销设备
func (cr *consulRegister) Deregister() {
	cr.cancel()
	if cr.cnf.DeviceInfo.DeviceID != "" {
		cr.client.Agent().ServiceDeregister(cr.cnf.DeviceInfo.DeviceID)
	}
}

type consulDiscover struct {
	ctx    context.Context
	cancel context.CancelFunc

	cnf    *DiscoverConfig
	client *consulapi.Client
}

// NewConsulDiscover consul 设备发现
func NewConsulDiscover(cnf *DiscoverConfig) (DeviceDiscover, error) {
	if cnf.Logger == nil {
		cnf.Logger = DefaultLogger
	}

	consulConfig := consulapi.DefaultConfig()
	consulConfig.Address = strings.Join(cnf.Registries, ",")
	consulClient, err := consulapi.NewClient(consulConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &consulDiscover{
		ctx:    ctx,
		cancel: cancel,

		cnf:    cnf,
		client: consulClient,
	}, nil
}

// Watch 监控设备上下线
func (cd *consulDiscover) Watch(callback WatchCallback) {
	serviceName := strings.TrimPrefix(cd.cnf.DevicePrefix, "/")
	var lastIndex uint64
	for {
		select {
		case <-cd.ctx.Done():
			return
		default:
			services, querymeta, err := cd.client.Health().Service(serviceName, consulDeviceTag, false, &consulapi.QueryOptions{
				WaitIndex: lastIndex, // 同步点，阻塞直到有新的更新
			})
			if err != nil {
				cd.cnf.Logger.Warnf("consul discover: watch fail, err: %v", err)
				select {
				case <-cd.ctx.Done():
					return
				case <-time.After(consulRetryWait):
				}
				continue
			}
			lastIndex = querymeta.LastIndex

			for _, service := range services {
				meta := service.Service.Meta
				deviceID, ok := meta["device_id"]
				if !ok {
					continue
				}
				switch service.Checks.AggregatedStatus() {
				case consulapi.HealthPassing:
					device, _ := json.Marshal(meta)
					callback.AddOrUpdate(deviceID, device)
				case consulapi.HealthWarning, consulapi.HealthCritical:
					callback.Delete(deviceID)
				}
			}
		}
	}
}

// Stop 停止监控
func (cd *consulDiscover) Stop() {
	cd.cancel()
}
