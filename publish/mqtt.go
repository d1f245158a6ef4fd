package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/arloliu/go-plclink/config"
	"github.com/arloliu/go-plclink/logger"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 30 * time.Second
	defaultRetryInterval  = 5 * time.Second

	// disconnectQuiesce is in milliseconds.
	disconnectQuiesce = 250
)

// PointMessage is published to "<prefix>/<device>/<point>".
type PointMessage struct {
	Device    string `json:"device"`
	Point     string `json:"point"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// DeviceMessage is published to "<prefix>/<device>".
type DeviceMessage struct {
	Device    string         `json:"device"`
	Values    map[string]any `json:"values"`
	Timestamp string         `json:"timestamp"`
}

// MQTT publishes samples as JSON messages.
type MQTT struct {
	client  pahomqtt.Client
	prefix  string
	qos     byte
	retain  bool
	timeout time.Duration
	logger  logger.Logger
}

// NewMQTT connects to the broker described by cfg.
func NewMQTT(cfg config.MQTTConfig, l logger.Logger) (*MQTT, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(defaultRetryInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	log := l.With("component", "mqtt", "broker", cfg.Broker)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		log.Info("connected")
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: connect to %s: timeout after %v", ErrNotConnected, cfg.Broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrNotConnected, cfg.Broker, err)
	}

	return newMQTT(client, cfg, log), nil
}

func newMQTT(client pahomqtt.Client, cfg config.MQTTConfig, l logger.Logger) *MQTT {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	return &MQTT{
		client:  client,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:     cfg.QoS,
		retain:  cfg.Retain,
		timeout: timeout,
		logger:  l,
	}
}

// PointTopic returns the topic of one point.
func (m *MQTT) PointTopic(device, point string) string {
	return m.DeviceTopic(device) + "/" + point
}

// DeviceTopic returns the topic of a device summary.
func (m *MQTT) DeviceTopic(device string) string {
	if m.prefix == "" {
		return device
	}

	return m.prefix + "/" + device
}

// Publish sends one message per value and one device summary.
func (m *MQTT) Publish(ctx context.Context, s Sample) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}

	ts := s.Time.UTC().Format(time.RFC3339Nano)

	for name, v := range s.Values {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := json.Marshal(PointMessage{Device: s.Device, Point: name, Value: v, Timestamp: ts})
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", ErrPublishFailed, name, err)
		}
		if err := m.send(m.PointTopic(s.Device, name), payload); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(DeviceMessage{Device: s.Device, Values: s.Values, Timestamp: ts})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublishFailed, s.Device, err)
	}

	return m.send(m.DeviceTopic(s.Device), payload)
}

func (m *MQTT) send(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, m.retain, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(disconnectQuiesce)
	m.logger.Info("disconnected")

	return nil
}
