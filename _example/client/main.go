package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	zenohrpc "github.com/AkihiroUeda35/zenoh-rpc-go"
	"github.com/AkihiroUeda35/zenoh-rpc-go/service"
)

var (
	deviceID      = flag.String("device", "device-001", "target device id")
	queryEndpoint = flag.String("query", "tcp://localhost:17447", "query endpoint")
	pubEndpoint   = flag.String("pub", "tcp://localhost:17448", "telemetry sub endpoint")
	watchSensor   = flag.Bool("watch", false, "subscribe to sensor telemetry")
)

func main() {
	flag.Parse()

	session, err := zenohrpc.NewZmqSession(&zenohrpc.ZmqConfig{
		Identity:      "controller",
		QueryEndpoint: *queryEndpoint,
		PubEndpoint:   *pubEndpoint,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()
	// 等待 DEALER 完成连接
	time.Sleep(100 * time.Millisecond)

	channel := zenohrpc.NewRpcChannel(session, zenohrpc.WithDeviceID(*deviceID))
	defer channel.Close()
	cli := service.NewDeviceServiceClient(channel)

	ctx := context.Background()

	ledResp, status := cli.SetLed(ctx, &service.LedRequest{On: true}, 3*time.Second)
	if status != zenohrpc.StatusOK {
		log.Fatalf("SetLed failed: %s", status)
	}
	log.Printf("led is now %v", ledResp.On)

	echoResp, status := cli.Echo(ctx, &service.EchoRequest{Msg: "hello device"}, 3*time.Second)
	if status != zenohrpc.StatusOK {
		log.Fatalf("Echo failed: %s", status)
	}
	log.Printf("echo reply: %s", echoResp.Msg)

	if _, status = cli.StartSensorStream(ctx, &service.SensorRequest{IntervalMs: 500}, 3*time.Second); status != zenohrpc.StatusOK {
		log.Fatalf("StartSensorStream failed: %s", status)
	}

	if *watchSensor {
		topic, err := zenohrpc.BuildTelemetryTopic(*deviceID, service.SensorTelemetrySuffix)
		if err != nil {
			log.Fatal(err)
		}
		sub, err := session.DeclareSubscriber(topic, func(topic string, payload zenohrpc.ByteReader) {
			var sample service.SensorTelemetry
			if err := zenohrpc.DecodeFrom(payload, &sample); err != nil {
				log.Printf("bad telemetry sample: %v", err)
				return
			}
			log.Printf("sensor: %.1f°C  %.1f%%", sample.Temperature, sample.Humidity)
		})
		if err != nil {
			log.Fatal(err)
		}
		defer sub.Undeclare()

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
	}

	if _, status = cli.StopSensorStream(ctx, 3*time.Second); status != zenohrpc.StatusOK {
		log.Fatalf("StopSensorStream failed: %s", status)
	}
}
