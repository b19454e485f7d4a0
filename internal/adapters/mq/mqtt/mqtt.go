// Package mqtt publishes attendance events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
)

const (
	defaultTopic         = "facegate/attendance"
	defaultClientID      = "facegate"
	defaultQoS           = 1
	connectTimeout       = 5 * time.Second
	publishTimeout       = 2 * time.Second
	disconnectQuiesceMs  = 250
	maxReconnectInterval = 30 * time.Second
	connectRetryInterval = 2 * time.Second
)

var (
	// ErrNotConnected is returned by Publish before Connect or after the link drops.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt timeout")
)

// Client is the subset of the paho client the publisher uses.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Publisher sends each event as JSON to <topic>/<channel>.
type Publisher struct {
	broker   string
	clientID string
	topic    string
	qos      byte

	mu     sync.RWMutex
	client Client
	logger logger.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic sets the base topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if t := strings.Trim(topic, "/ "); t != "" {
			p.topic = t
		}
	}
}

// WithClientID sets the MQTT client id.
func WithClientID(id string) Option {
	return func(p *Publisher) {
		if id != "" {
			p.clientID = id
		}
	}
}

// WithQoS sets the publish QoS (0, 1 or 2).
func WithQoS(qos int) Option {
	return func(p *Publisher) {
		if qos >= 0 && qos <= 2 {
			p.qos = byte(qos)
		}
	}
}

// WithClient injects a ready client instead of dialing broker.
func WithClient(c Client) Option {
	return func(p *Publisher) {
		p.client = c
	}
}

// New creates a publisher for broker ("tcp://host:1883").
func New(broker string, opts ...Option) *Publisher {
	p := &Publisher{
		broker:   broker,
		clientID: defaultClientID,
		topic:    defaultTopic,
		qos:      defaultQoS,
		logger:   logger.Get().Named("mqtt"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials the broker with automatic reconnect enabled.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		opts := paho.NewClientOptions()
		opts.AddBroker(p.broker)
		opts.SetClientID(p.clientID)
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(connectRetryInterval)
		opts.SetMaxReconnectInterval(maxReconnectInterval)
		opts.OnConnect = func(paho.Client) {
			p.logger.Info(context.Background(), "mqtt connection established", logger.String("broker", p.broker))
		}
		opts.OnConnectionLost = func(_ paho.Client, err error) {
			p.logger.Warn(context.Background(), "mqtt connection lost, will auto-reconnect",
				logger.String("broker", p.broker), logger.Error(err))
		}
		p.client = paho.NewClient(opts)
	}

	p.logger.Info(ctx, "connecting to mqtt broker", logger.String("broker", p.broker))
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: connect to %s", ErrTimeout, p.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.broker, err)
	}
	return nil
}

// Topic returns the topic an event on ch is published to.
func (p *Publisher) Topic(ch model.Channel) string {
	return p.topic + "/" + ch.String()
}

// Publish sends ev and waits for the broker's acknowledgement.
func (p *Publisher) Publish(ctx context.Context, ev model.AttendanceEvent) error { //nolint:gocritic // hugeParam
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := p.Topic(ev.Channel)
	token := c.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		return fmt.Errorf("%w: publish %s", ErrTimeout, topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
		p.logger.Info(context.Background(), "mqtt disconnected")
	}
	return nil
}
