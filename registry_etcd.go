package zenohrpc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type etcdRegister struct {
	ctx    context.Context
	cancel context.CancelFunc

	metadata string
	key      string
	cnf      *RegisterConfig
	client   *clientv3.Client
	leaseID  clientv3.LeaseID
}

func NewEtcdRegister(cnf *RegisterConfig) (DeviceRegister, error) {
	etcdClient, err := clientv3.New(clientv3.Config{Endpoints: cnf.Registries})
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(cnf.DeviceInfo)
	if err != nil {
		return nil, err
	}
	if cnf.Logger == nil {
		cnf.Logger = DefaultLogger
	}

	key := strings.Join([]string{cnf.DevicePrefix, cnf.DeviceInfo.DeviceID}, "/")
	ctx, cancel := context.WithCancel(context.Background())
	return &etcdRegister{
		ctx:    ctx,
		cancel: cancel,

		metadata: string(metadata),
		key:      key,
		cnf:      cnf,
		client:   etcdClient,
	}, nil
}

// Register 注册设备并按心跳周期续租，租约丢失后重新注册
func (er *etcdRegister) Register() {
	tick := time.NewTicker(er.cnf.HeartBeatPeriod)
	defer tick.Stop()

	for {
		select {
		case <-er.ctx.Done():
			return
		case <-tick.C:
			if er.leaseID > 0 {
				if err := er.leaseRenewal(); err != nil {
					er.cnf.Logger.Warnf("etcd register: device: %s, leaseid: %d, err: %v",
						er.cnf.DeviceInfo.DeviceID, er.leaseID, err)
					er.leaseID = 0
					continue
				}
				er.cnf.Logger.Debugf("etcd register: device: %s renewal succ", er.cnf.DeviceInfo.DeviceID)
			} else {
				if err := er.register(); err != nil {
					er.cnf.Logger.Warnf("etcd register: device: %s register fail, err: %v",
						er.cnf.DeviceInfo.DeviceID, err)
					continue
				}
				er.cnf.Logger.Infof("etcd register: device: %s register succ", er.cnf.DeviceInfo.DeviceID)
			}
		}
	}
}

func (er *etcdRegister) register() error {
	ctx, cancel := context.WithTimeout(er.ctx, time.Second*5)
	defer cancel()
	resp, err := er.client.Grant(ctx, int64(er.cnf.HeartBeatPeriod.Seconds())+3)
	if err != nil {
		return err
	}

	_, err = er.client.Put(ctx, er.key, er.metadata, clientv3.WithLease(resp.ID))
	er.leaseID = resp.ID
	return err
}

func (er *etcdRegister) leaseRenewal() error {
	ctx, cancel := context.WithTimeout(er.ctx, time.Second*5)
	defer cancel()
	_, err := er.client.KeepAliveOnce(ctx, er.leaseID)
	return err
}

// Deregister 注销设备
func (er *etcdRegister) Deregister() {
	er.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := er.client.Delete(ctx, er.key); err != nil {
		er.cnf.Logger.Errorf("etcd register: device: %s deregister fail, err: %v", er.key, err)
	}
}

type etcdDiscover struct {
	ctx    context.Context
	cancel context.CancelFunc

	prefix string
	cnf    *DiscoverConfig
	client *clientv3.Client
}

func NewEtcdDiscover(cnf *DiscoverConfig) (DeviceDiscover, error) {
	etcdClient, err := clientv3.New(clientv3.Config{Endpoints: cnf.Registries})
	if err != nil {
		return nil, err
	}

	if cnf.Logger == nil {
		cnf.Logger = DefaultLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &etcdDiscover{
		ctx:    ctx,
		cancel: cancel,

		prefix: cnf.DevicePrefix,
		cnf:    cnf,
		client: etcdClient,
	}, nil
}

// Watch 先全量拉取在线设备，再监控后续上下线事件
func (ed *etcdDiscover) Watch(callback WatchCallback) {
	ed.getAllDevices(callback)

	watch := ed.client.Watch(ed.ctx, ed.prefix, clientv3.WithPrefix())
	for {
		select {
		case <-ed.ctx.Done():
			return
		case ret := <-watch:
			if err := ret.Err(); err != nil {
				ed.cnf.Logger.Errorf("etcd discover: watch err, err: %v", err)
				continue
			}
			for _, event := range ret.Events {
				if event.Kv == nil {
					continue
				}

				deviceID := deviceIDFromKey(string(event.Kv.Key))
				switch event.Type {
				case clientv3.EventTypePut:
					callback.AddOrUpdate(deviceID, event.Kv.Value)
				case clientv3.EventTypeDelete:
					callback.Delete(deviceID)
				}
			}
		}
	}
}

func (ed *etcdDiscover) getAllDevices(callback WatchCallback) {
	ctx, cancel := context.WithTimeout(ed.ctx, time.Second*5)
	defer cancel()
	result, err := ed.client.Get(ctx, ed.prefix, clientv3.WithPrefix())
	if err != nil {
		ed.cnf.Logger.Warnf("etcd discover: etcd-client Get() fail, err: %v", err)
		return
	}

	for _, kv := range result.Kvs {
		deviceID := deviceIDFromKey(string(kv.Key))
		if err := callback.AddOrUpdate(deviceID, kv.Value); err != nil {
			ed.cnf.Logger.Warnf("etcd discover: device: %s AddOrUpdate fail, err: %v", deviceID, err)
		}
	}
}

// Stop 停止监控
func (ed *etcdDiscover) Stop() {
	ed.cancel()
}

func deviceIDFromKey(key string) string {
	l := strings.Split(key, "/")
	return l[len(l)-1]
}
