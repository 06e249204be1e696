package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const DefaultTopic = "/fleet/+/+/position"

type positionHandler interface {
	Handle(ctx context.Context, pos Position) ([]Event, error)
}

type positionMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Subscriber：订阅 /fleet/<account>/<device>/position
type Subscriber struct {
	client  mqtt.Client
	topic   string
	handler positionHandler
	timeout time.Duration
}

func NewSubscriber(client mqtt.Client, topic string, h positionHandler) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Subscriber{client: client, topic: topic, handler: h, timeout: 5 * time.Second}
}

func (s *Subscriber) Start() error {
	token := s.client.Subscribe(s.topic, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	pos, err := parsePosition(msg.Topic(), msg.Payload())
	if err != nil {
		logger.L().Warn("tracker_invalid_message", "topic", msg.Topic(), "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.handler.Handle(ctx, pos); err != nil {
		logger.L().Error("tracker_handle_error", "topic", msg.Topic(), "err", err)
	}
}

// parsePosition：从主题取账号与设备，从负载取坐标与时间
func parsePosition(topic string, payload []byte) (Position, error) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "fleet" || parts[3] != "position" || parts[1] == "" || parts[2] == "" {
		return Position{}, fmt.Errorf("topic %q: want /fleet/<account>/<device>/position", topic)
	}
	var raw positionMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Position{}, fmt.Errorf("payload: %w", err)
	}
	p := geozone.Point{Lat: raw.Latitude, Lon: raw.Longitude}
	if !p.Valid() {
		return Position{}, fmt.Errorf("coordinates out of range: %v,%v", raw.Latitude, raw.Longitude)
	}
	if raw.Timestamp <= 0 {
		return Position{}, fmt.Errorf("timestamp: must be positive")
	}
	return Position{Account: parts[1], DeviceID: parts[2], Point: p, Time: time.Unix(raw.Timestamp, 0)}, nil
}
