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
	"github.com/AkihiroUeda35/zenoh-rpc-go/device"
	"github.com/AkihiroUeda35/zenoh-rpc-go/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	deviceID      = flag.String("device", "device-001", "device id")
	queryEndpoint = flag.String("query", "tcp://*:17447", "query router endpoint")
	pubEndpoint   = flag.String("pub", "tcp://*:17448", "telemetry pub endpoint")
	etcdEndpoint  = flag.String("etcd", "", "etcd endpoint for device registry")
	credFile      = flag.String("creds", "credentials.json", "network credential file")
	jaegerURL     = flag.String("jaeger", "", "jaeger collector endpoint")
)

func main() {
	flag.Parse()

	if *jaegerURL != "" {
		tp, err := tracerProvider(*jaegerURL)
		if err != nil {
			log.Fatal(err)
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := device.Dial(ctx, func() (zenohrpc.Session, error) {
		return zenohrpc.NewZmqSession(&zenohrpc.ZmqConfig{
			Identity:      *deviceID,
			QueryEndpoint: *queryEndpoint,
			PubEndpoint:   *pubEndpoint,
			Server:        true,
		})
	}, time.Second, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	channel := zenohrpc.NewRpcChannel(session, zenohrpc.WithDeviceID(*deviceID))
	defer channel.Close()

	sensorPub := zenohrpc.NewTelemetryPublisher[service.SensorTelemetry](
		session, *deviceID, service.SensorTelemetrySuffix)
	logPub := zenohrpc.NewLogPublisher(session, *deviceID)

	svc := device.NewService(&device.Config{
		DeviceID:       *deviceID,
		CredentialFile: *credFile,
	}, sensorPub, logPub)

	if err := service.RegisterDeviceServiceServer(channel, svc); err != nil {
		log.Fatal(err)
	}

	go func() {
		streamer := device.NewStreamer(svc, nil)
		if err := streamer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("streamer stopped: %v", err)
		}
	}()

	if *etcdEndpoint != "" {
		register, err := zenohrpc.NewEtcdRegister(&zenohrpc.RegisterConfig{
			Registries:      []string{*etcdEndpoint},
			DevicePrefix:    "/zenoh-rpc",
			HeartBeatPeriod: 5 * time.Second,
			DeviceInfo: zenohrpc.DeviceInfo{
				DeviceID: *deviceID,
				Services: []string{service.Name},
				Endpoint: *queryEndpoint,
			},
		})
		if err != nil {
			log.Fatal(err)
		}
		go register.Register()
		defer register.Deregister()
	}

	log.Printf("device %s serving on %s", *deviceID, *queryEndpoint)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}

const (
	serviceName = "zenoh-rpc-device"
	environment = "production"
)

func tracerProvider(url string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("environment", environment),
		)),
	)
	return tp, nil
}
