package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttKeepAlive         = 60 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
	mqttMaxReconnect      = 30 * time.Second
)

var (
	ErrMQTTConnect = errors.New("mqtt connect failed")
	ErrMQTTPublish = errors.New("mqtt publish failed")
)

// mqttClient is the subset of pahomqtt.Client the publisher relies on.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type MQTTPublisher struct {
	client         mqttClient
	topicPrefix    string
	qos            byte
	publishTimeout time.Duration
	logger         logger.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewMQTTPublisher connects to the broker and returns a publisher for
// lifecycle events.
func NewMQTTPublisher(cfg config.MQTT, log logger.Logger) (*MQTTPublisher, error) {
	componentLogger := log.Component("mqtt_publisher")

	opts := buildClientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		componentLogger.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		componentLogger.Info().Str("broker", brokerURL(cfg)).Msg("mqtt connected")
	})

	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, cfg.ConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	return newMQTTPublisher(client, cfg, componentLogger), nil
}

func newMQTTPublisher(client mqttClient, cfg config.MQTT, log logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client:         client,
		topicPrefix:    cfg.TopicPrefix,
		qos:            cfg.QoS,
		publishTimeout: cfg.PublishTimeout,
		logger:         log,
	}
}

func (p *MQTTPublisher) Publish(ctx context.Context, event model.LifecycleEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	body, err := json.Marshal(NewPayload(event))
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrMQTTPublish, err)
	}

	topic := Topic(p.topicPrefix, event)
	token := p.client.Publish(topic, p.qos, false, body)

	timeout := p.publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrMQTTPublish, topic, timeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMQTTPublish, topic, err)
	}

	return nil
}

func (p *MQTTPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.client.Disconnect(mqttDisconnectQuiesce)
	})

	return nil
}

// Topic returns "<prefix>/devices/<id>/<action>".
func Topic(prefix string, event model.LifecycleEvent) string {
	return fmt.Sprintf("%s/devices/%s/%s", prefix, event.Device.ID, event.Action)
}

func brokerURL(cfg config.MQTT) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}

	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

func buildClientOptions(cfg config.MQTT) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(mqttMaxReconnect).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(mqttKeepAlive)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}
