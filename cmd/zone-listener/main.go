// 进出事件监听：订阅 MQTT 设备位置，检测围栏进出并发布到 RabbitMQ
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"geozone-api/internal/app"
	"geozone-api/internal/config"
	"geozone-api/internal/logger"
	"geozone-api/internal/tracker"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Error("config_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.MQTTBroker == "" {
		l.Error("listener_no_broker", "hint", "set MQTT_BROKER")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		l.Error("startup_error", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	var pub tracker.Publisher
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			l.Error("rabbitmq_connect_error", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		rp, err := tracker.NewRabbitPublisher(conn, cfg.TrackerExchange)
		if err != nil {
			l.Error("rabbitmq_setup_error", "err", err)
			os.Exit(1)
		}
		pub = rp
		l.Info("rabbitmq_ready", "exchange", cfg.TrackerExchange)
	} else {
		l.Warn("rabbitmq_disabled", "reason", "RABBITMQ_URL not set; events are only logged")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		l.Error("mqtt_connect_error", "broker", cfg.MQTTBroker, "err", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	sub := tracker.NewSubscriber(client, cfg.MQTTTopic, tracker.New(a.Resolver, pub, a.Metrics))
	if err := sub.Start(); err != nil {
		l.Error("mqtt_subscribe_error", "topic", cfg.MQTTTopic, "err", err)
		os.Exit(1)
	}
	l.Info("listener_started", "topic", cfg.MQTTTopic)
	<-ctx.Done()
	l.Info("listener_stopped")
}
