// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge connects the dimmer to an MQTT broker. Topics are
// configured by parameter id; publishing to an id with no topic is a no-op.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Publish while the broker is unreachable
var ErrNotConnected = errors.New("broker not connected")

// Topic ids
const (
	TopicConnecting = "pubMqttConnecting"
	TopicStatus     = "pubMqttStatus"
	subscribePrefix = "subMqtt"
)

const (
	publishTimeout    = 2 * time.Second
	subscribeTimeout  = 5 * time.Second
	commandQueue      = 16
	reconnectInterval = 5 * time.Second
)

// Topics resolves parameter ids to topic names and back
type Topics interface {
	Value(id string) string
	IDForValue(value string) (string, bool)
	WithPrefix(prefix string) []string
}

// Options configure the broker connection
type Options struct {
	Server   string
	Port     string
	User     string
	Password string
	ClientID string
	Hostname string
}

// Broker returns the tcp://host:port URL, empty when no server is set.
func (o Options) Broker() string {
	if o.Server == "" {
		return ""
	}
	port := o.Port
	if port == "" {
		port = "1883"
	}
	if strings.Contains(o.Server, "://") {
		return o.Server
	}
	return "tcp://" + net.JoinHostPort(o.Server, port)
}

// client is the part of mqtt.Client the bridge uses
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Bridge publishes telemetry and turns subscribed topics into Commands
type Bridge struct {
	topics   Topics
	hostname string
	logger   *zap.Logger

	mu       sync.Mutex
	client   client
	commands chan Command
}

// New creates a bridge. Call Connect to reach the broker.
func New(topics Topics, hostname string, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		topics:   topics,
		hostname: hostname,
		logger:   logger,
		commands: make(chan Command, commandQueue),
	}
}

// Commands delivers requests received from the broker.
func (b *Bridge) Commands() <-chan Command {
	return b.commands
}

// Connect starts dialing the broker and returns immediately. The client
// retries every 5 s until it connects and reconnects after losses, as long
// as ctx is alive.
func (b *Bridge) Connect(ctx context.Context, o Options) error {
	broker := o.Broker()
	if broker == "" {
		b.logger.Info("mqtt broker not defined")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	if o.User != "" {
		opts.SetUsername(o.User)
		opts.SetPassword(o.Password)
	}
	clientID := o.ClientID
	if clientID == "" {
		clientID = "penumbra-" + b.hostname
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInterval)
	opts.SetMaxReconnectInterval(reconnectInterval)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.logger.Info("mqtt connected", zap.String("broker", broker), zap.String("client", clientID))
		b.onConnect()
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	c := mqtt.NewClient(opts)
	b.mu.Lock()
	b.client = c
	b.mu.Unlock()

	token := c.Connect()
	go func() {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				b.logger.Warn("mqtt connect failed", zap.String("broker", broker), zap.Error(err))
			}
		case <-ctx.Done():
			c.Disconnect(0)
		}
	}()
	return nil
}

// onConnect subscribes to every configured command topic and announces
// the hostname.
func (b *Bridge) onConnect() {
	c := b.currentClient()
	if c == nil {
		return
	}
	for _, id := range b.topics.WithPrefix(subscribePrefix) {
		topic := b.topics.Value(id)
		token := c.Subscribe(topic, 0, b.handleMessage)
		if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
			b.logger.Warn("mqtt subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		b.logger.Debug("mqtt subscribed", zap.String("topic", topic))
	}
	if err := b.Publish(TopicConnecting, b.hostname); err != nil {
		b.logger.Debug("connecting announce failed", zap.Error(err))
	}
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := string(msg.Payload())
	b.logger.Debug("mqtt message", zap.String("topic", msg.Topic()), zap.String("payload", payload))

	id, ok := b.topics.IDForValue(msg.Topic())
	if !ok {
		return
	}
	cmd, ok := ParseCommand(id, payload)
	if !ok {
		return
	}

	select {
	case b.commands <- cmd:
	default:
		b.logger.Warn("command queue full, dropping", zap.Stringer("command", cmd.Kind))
	}
}

func (b *Bridge) currentClient() client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Publish sends payload to the topic configured under topicID. Without a
// configured broker it does nothing and returns nil.
func (b *Bridge) Publish(topicID, payload string) error {
	return b.publish(topicID, payload)
}

func (b *Bridge) publish(topicID string, payload interface{}) error {
	topic := b.topics.Value(topicID)
	if topic == "" {
		return nil
	}
	c := b.currentClient()
	if c == nil {
		return nil
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.logger.Debug("mqtt publish", zap.String("topic", topic))
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if c := b.currentClient(); c != nil {
		c.Disconnect(250)
	}
}
