package zenohrpc

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestBuildTopic(t *testing.T) {
	topic, err := BuildTopic("device-001", "DeviceService", "SetLed")
	if err != nil {
		t.Fatal(err)
	}
	if topic != "device-001/rpc/DeviceService/SetLed" {
		t.Fatalf("unexpected topic: %s", topic)
	}

	// 客户端与服务端必须构造出同一个 topic
	again, _ := BuildTopic("device-001", "DeviceService", "SetLed")
	if topic != again {
		t.Fatal("topic not deterministic")
	}
}

func TestBuildTopicNoDevice(t *testing.T) {
	topic, err := BuildTopic("", "DeviceService", "Echo")
	if err != nil {
		t.Fatal(err)
	}
	if topic != "rpc/DeviceService/Echo" {
		t.Fatalf("unexpected topic: %s", topic)
	}
}

func TestBuildTopicDistinct(t *testing.T) {
	a, _ := BuildTopic("dev", "DeviceService", "SetLed")
	b, _ := BuildTopic("dev", "DeviceService", "Echo")
	c, _ := BuildTopic("dev2", "DeviceService", "SetLed")
	if a == b || a == c || b == c {
		t.Fatalf("topics collide: %s %s %s", a, b, c)
	}
}

func TestBuildTopicEmptyName(t *testing.T) {
	if _, err := BuildTopic("dev", "", "SetLed"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := BuildTopic("dev", "DeviceService", ""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestBuildTopicTooLong(t *testing.T) {
	long := strings.Repeat("x", MaxTopicLen)
	if _, err := BuildTopic(long, "DeviceService", "SetLed"); !errors.Is(err, ErrTopicTooLong) {
		t.Fatalf("expected ErrTopicTooLong, got %v", err)
	}

	// 恰好等于上限时不报错
	svc := strings.Repeat("s", MaxTopicLen-len("rpc/")-len("/m"))
	topic, err := BuildTopic("", svc, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(topic) != MaxTopicLen {
		t.Fatalf("expected len %d, got %d", MaxTopicLen, len(topic))
	}
}

func TestBuildTelemetryTopic(t *testing.T) {
	topic, err := BuildTelemetryTopic("device-001", "/telemetry/sensor")
	if err != nil {
		t.Fatal(err)
	}
	if topic != "device-001/telemetry/sensor" {
		t.Fatalf("unexpected topic: %s", topic)
	}

	logTopic, err := BuildLogTopic("device-001")
	if err != nil {
		t.Fatal(err)
	}
	if logTopic != "device-001/log" {
		t.Fatalf("unexpected log topic: %s", logTopic)
	}
}
