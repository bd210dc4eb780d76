package device

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	zenohrpc "github.com/AkihiroUeda35/zenoh-rpc-go"
	"github.com/AkihiroUeda35/zenoh-rpc-go/service"
	"github.com/pkg/errors"
)

func TestServiceLedState(t *testing.T) {
	svc := NewService(&Config{DeviceID: "dev-1"}, nil, nil)

	if svc.LedOn() {
		t.Fatal("led should start off")
	}
	resp, status := svc.SetLed(&service.LedRequest{On: true})
	if status != zenohrpc.StatusOK {
		t.Fatalf("status = %s", status)
	}
	if !resp.On || !svc.LedOn() {
		t.Fatal("led not turned on")
	}
	svc.SetLed(&service.LedRequest{On: false})
	if svc.LedOn() {
		t.Fatal("led not turned off")
	}
}

func TestServiceEchoBlobCopies(t *testing.T) {
	svc := NewService(&Config{DeviceID: "dev-1"}, nil, nil)

	data := []byte{1, 2, 3}
	resp, status := svc.EchoBlob(&service.EchoBlobRequest{Data: data})
	if status != zenohrpc.StatusOK {
		t.Fatalf("status = %s", status)
	}
	data[0] = 99
	if resp.Data[0] != 1 {
		t.Fatal("response aliases request buffer")
	}
}

func TestServiceStreamToggle(t *testing.T) {
	svc := NewService(&Config{DeviceID: "dev-1"}, nil, nil)

	if svc.StreamingEnabled() {
		t.Fatal("streaming should start disabled")
	}
	if _, status := svc.StartSensorStream(&service.SensorRequest{IntervalMs: 250}); status != zenohrpc.StatusOK {
		t.Fatalf("status = %s", status)
	}
	if !svc.StreamingEnabled() {
		t.Fatal("streaming not enabled")
	}
	if svc.streamInterval() != 250*time.Millisecond {
		t.Fatalf("interval = %s", svc.streamInterval())
	}
	if _, status := svc.StopSensorStream(&service.Empty{}); status != zenohrpc.StatusOK {
		t.Fatalf("status = %s", status)
	}
	if svc.StreamingEnabled() {
		t.Fatal("streaming not disabled")
	}

	// IntervalMs 为 0 时回落到默认间隔
	svc.StartSensorStream(&service.SensorRequest{})
	if svc.streamInterval() != DefaultSensorInterval {
		t.Fatalf("interval = %s", svc.streamInterval())
	}
}

func TestServiceConfigureNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	svc := NewService(&Config{DeviceID: "dev-1", CredentialFile: path}, nil, nil)

	if _, status := svc.ConfigureNetwork(&service.NetworkSettings{SSID: "lab", Password: "secret"}); status != zenohrpc.StatusOK {
		t.Fatalf("status = %s", status)
	}

	// 新实例应能从文件加载已保存的凭据
	store := NewCredentialStore(path)
	settings := store.Load()
	if settings == nil {
		t.Fatal("credentials not persisted")
	}
	if settings.SSID != "lab" || settings.Password != "secret" {
		t.Fatalf("credentials mismatch: %+v", settings)
	}
}

func TestCredentialStoreInMemory(t *testing.T) {
	store := NewCredentialStore("")
	if store.Load() != nil {
		t.Fatal("fresh store should be empty")
	}
	if err := store.Save(&service.NetworkSettings{SSID: "x"}); err != nil {
		t.Fatal(err)
	}
	if store.Load().SSID != "x" {
		t.Fatal("in-memory save lost")
	}
}

func TestStreamerPublishes(t *testing.T) {
	session, err := zenohrpc.NewInprocSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	var count int32
	sub, err := session.DeclareSubscriber("dev-1"+service.SensorTelemetrySuffix,
		func(topic string, payload zenohrpc.ByteReader) {
			var sample service.SensorTelemetry
			if err := zenohrpc.DecodeFrom(payload, &sample); err != nil {
				t.Errorf("decode sample: %v", err)
				return
			}
			atomic.AddInt32(&count, 1)
		})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	sensorPub := zenohrpc.NewTelemetryPublisher[service.SensorTelemetry](
		session, "dev-1", service.SensorTelemetrySuffix)
	svc := NewService(&Config{DeviceID: "dev-1"}, sensorPub, nil)
	svc.StartSensorStream(&service.SensorRequest{IntervalMs: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewStreamer(svc, nil).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&count) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d samples published", atomic.LoadInt32(&count))
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 停流后不再发布
	svc.StopSensorStream(&service.Empty{})
	time.Sleep(50 * time.Millisecond)
	before := atomic.LoadInt32(&count)
	time.Sleep(100 * time.Millisecond)
	if after := atomic.LoadInt32(&count); after > before+1 {
		t.Fatalf("samples kept flowing after stop: %d -> %d", before, after)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("streamer did not stop on cancel")
	}
}

func TestDialRetries(t *testing.T) {
	var attempts int32
	factory := func() (zenohrpc.Session, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("endpoint not ready")
		}
		return zenohrpc.NewInprocSession()
	}

	session, err := Dial(context.Background(), factory, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("attempts = %d", attempts)
	}
}

func TestDialCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, func() (zenohrpc.Session, error) {
		return nil, errors.New("never ready")
	}, 10*time.Millisecond, nil)
	if err == nil {
		t.Fatal("expected error after cancel")
	}
}
