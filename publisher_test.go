package zenohrpc

import (
	"sync"
	"testing"
	"time"
)

type sensorSample struct {
	Temperature float32 `msgpack:"temperature"`
	Humidity    float32 `msgpack:"humidity"`
}

func TestTelemetryPublisher(t *testing.T) {
	session, err := NewInprocSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	var mu sync.Mutex
	var received []sensorSample
	sub, err := session.DeclareSubscriber("device-001/telemetry/sensor", func(topic string, payload ByteReader) {
		var sample sensorSample
		if err := DecodeFrom(payload, &sample); err != nil {
			t.Errorf("decode sample: %v", err)
			return
		}
		mu.Lock()
		received = append(received, sample)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	pub := NewTelemetryPublisher[sensorSample](session, "device-001", "/telemetry/sensor")
	if !pub.Valid() {
		t.Fatal("publisher invalid")
	}
	defer pub.Undeclare()

	if !pub.Publish(sensorSample{Temperature: 25.5, Humidity: 60}) {
		t.Fatal("publish failed")
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sample not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	got := received[0]
	mu.Unlock()
	if got.Temperature != 25.5 || got.Humidity != 60 {
		t.Fatalf("sample mismatch: %+v", got)
	}
}

func TestTelemetryPublisherInvalid(t *testing.T) {
	session, err := NewInprocSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	// 空 suffix 导致 topic 构造失败，publisher 无效但可安全使用
	pub := NewTelemetryPublisher[sensorSample](session, "device-001", "")
	if pub.Valid() {
		t.Fatal("expected invalid publisher")
	}
	if pub.Publish(sensorSample{}) {
		t.Fatal("publish on invalid publisher must return false")
	}
	if err := pub.Undeclare(); err != nil {
		t.Fatal(err)
	}
}

func TestTelemetryPublisherUndeclared(t *testing.T) {
	session, err := NewInprocSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	pub := NewTelemetryPublisher[sensorSample](session, "device-001", "/telemetry/sensor")
	if err := pub.Undeclare(); err != nil {
		t.Fatal(err)
	}
	if pub.Publish(sensorSample{}) {
		t.Fatal("publish after undeclare must return false")
	}
}

func TestLogPublisher(t *testing.T) {
	session, err := NewInprocSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	recordCh := make(chan LogRecord, 1)
	sub, err := session.DeclareSubscriber("device-001/log", func(topic string, payload ByteReader) {
		var rec LogRecord
		if err := DecodeFrom(payload, &rec); err != nil {
			t.Errorf("decode log record: %v", err)
			return
		}
		select {
		case recordCh <- rec:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	lp := NewLogPublisher(session, "device-001")
	if !lp.Valid() {
		t.Fatal("log publisher invalid")
	}
	defer lp.Undeclare()

	lp.Warnf("temperature high: %d", 80)

	select {
	case rec := <-recordCh:
		if rec.Level != "WARN" {
			t.Fatalf("level = %s", rec.Level)
		}
		if rec.Message != "temperature high: 80" {
			t.Fatalf("message = %s", rec.Message)
		}
		if rec.Timestamp == 0 {
			t.Fatal("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("log record not delivered")
	}
}
