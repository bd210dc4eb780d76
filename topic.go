package zenohrpc

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxTopicLen topic 最大长度，超出时构造直接报错（不做静默截断）
const MaxTopicLen = 128

var (
	ErrEmptyName    = errors.New("zenohrpc: service/method name is empty")
	ErrTopicTooLong = errors.New("zenohrpc: topic exceeds max length")
)

// BuildTopic 构造 rpc topic：
//	有 deviceID: "{device_id}/rpc/{service}/{method}"
//	无 deviceID: "rpc/{service}/{method}"
// 同一 deviceID 下不同 (service, method) 不会冲突
func BuildTopic(deviceID, serviceName, methodName string) (string, error) {
	if serviceName == "" || methodName == "" {
		return "", ErrEmptyName
	}

	var b strings.Builder
	if deviceID != "" {
		b.WriteString(deviceID)
		b.WriteByte('/')
	}
	b.WriteString("rpc/")
	b.WriteString(serviceName)
	b.WriteByte('/')
	b.WriteString(methodName)

	topic := b.String()
	if len(topic) > MaxTopicLen {
		return "", errors.Wrapf(ErrTopicTooLong, "%d > %d", len(topic), MaxTopicLen)
	}
	return topic, nil
}

// BuildTelemetryTopic 遥测 topic："{device_id}{suffix}"，suffix 由 schema 约定给出
func BuildTelemetryTopic(deviceID, suffix string) (string, error) {
	if suffix == "" {
		return "", ErrEmptyName
	}
	topic := deviceID + suffix
	if len(topic) > MaxTopicLen {
		return "", errors.Wrapf(ErrTopicTooLong, "%d > %d", len(topic), MaxTopicLen)
	}
	return topic, nil
}

// BuildLogTopic 设备日志 topic："{device_id}/log"
func BuildLogTopic(deviceID string) (string, error) {
	return BuildTelemetryTopic(deviceID, "/log")
}
