package device

import (
	"context"
	"math/rand"

	"github.com/AkihiroUeda35/zenoh-rpc-go/service"
	"golang.org/x/time/rate"
)

// Sensor 温湿度读数来源，可替换为真实硬件
type Sensor interface {
	Read() service.SensorTelemetry
}

// simSensor 随机游走模拟传感器
type simSensor struct {
	temp float32
	hum  float32
}

func newSimSensor() *simSensor {
	return &simSensor{temp: 25.0, hum: 50.0}
}

func (s *simSensor) Read() service.SensorTelemetry {
	s.temp += rand.Float32() - 0.5
	s.hum += rand.Float32() - 0.5
	if s.hum < 0 {
		s.hum = 0
	} else if s.hum > 100 {
		s.hum = 100
	}
	return service.SensorTelemetry{Temperature: s.temp, Humidity: s.hum}
}

// Streamer 按 Service 当前间隔定期发布传感器遥测；
// 流关闭时挂起，开启后恢复
type Streamer struct {
	svc    *Service
	sensor Sensor
}

func NewStreamer(svc *Service, sensor Sensor) *Streamer {
	if sensor == nil {
		sensor = newSimSensor()
	}
	return &Streamer{svc: svc, sensor: sensor}
}

// Run 阻塞运行直到 ctx 取消。采样节奏由限速器控制，
// StartSensorStream 修改间隔后下一拍生效
func (st *Streamer) Run(ctx context.Context) error {
	interval := st.svc.streamInterval()
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if next := st.svc.streamInterval(); next != interval {
			interval = next
			limiter.SetLimit(rate.Every(interval))
		}

		if !st.svc.StreamingEnabled() {
			continue
		}
		if st.svc.sensorPub == nil || !st.svc.sensorPub.Valid() {
			continue
		}

		sample := st.sensor.Read()
		if !st.svc.sensorPub.Publish(sample) {
			st.svc.logger.Warnf("device: telemetry publish failed")
		}
	}
}
