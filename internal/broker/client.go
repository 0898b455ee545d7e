// Package broker is the MQTT link to the lamp.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Defaults for Config fields left empty.
const (
	DefaultURL            = "mqtt://localhost:1883"
	DefaultConnectTimeout = 5 * time.Second
	DefaultPublishTimeout = 2 * time.Second
	ReconnectInterval     = 2 * time.Second
	MaxReconnectInterval  = 30 * time.Second
)

// ErrNotConnected is returned by Publish before Connect has been called.
var ErrNotConnected = errors.New("mqtt client not connected")

// Config contains MQTT connection settings.
type Config struct {
	URL            string
	Username       string
	Password       string
	ClientID       string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Stats contains publish counters.
type Stats struct {
	Connected bool
	Published uint64
	Delivered uint64
	Failed    uint64
}

// Client publishes lamp commands. Delivery is confirmed in the background;
// Publish never waits for the broker.
type Client struct {
	config Config
	broker string
	client mqtt.Client

	connected atomic.Bool
	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// New validates config and returns an unconnected Client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.ClientID == "" {
		config.ClientID = "mudra-" + uuid.NewString()[:8]
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultPublishTimeout
	}

	broker, err := ParseURL(config.URL)
	if err != nil {
		return nil, err
	}

	return &Client{config: config, broker: broker}, nil
}

// ParseURL converts an mqtt:// style URL into a paho broker address.
// mqtt and tcp map to tcp, mqtts and ssl map to ssl, ws and wss are kept.
func ParseURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "mqtt://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse mqtt url: %w", err)
	}

	var scheme, port string
	switch u.Scheme {
	case "mqtt", "tcp":
		scheme, port = "tcp", "1883"
	case "mqtts", "ssl", "tls":
		scheme, port = "ssl", "8883"
	case "ws":
		scheme, port = "ws", "80"
	case "wss":
		scheme, port = "wss", "443"
	default:
		return "", fmt.Errorf("unsupported mqtt scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	if p := u.Port(); p != "" {
		port = p
	}

	addr := scheme + "://" + net.JoinHostPort(host, port)
	if scheme == "ws" || scheme == "wss" {
		addr += u.Path
	}
	return addr, nil
}

// Broker returns the resolved broker address.
func (c *Client) Broker() string {
	return c.broker
}

func (c *Client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(ReconnectInterval)
	opts.SetMaxReconnectInterval(MaxReconnectInterval)
	opts.SetConnectTimeout(c.config.ConnectTimeout)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.connected.Store(true)
		slog.Info("mqtt connection established", "broker", c.broker, "client_id", c.config.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", c.broker, "error", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		slog.Debug("mqtt reconnecting", "broker", c.broker)
	})

	return opts
}

// Connect starts the connection. If the broker does not answer within the
// connect timeout the client keeps retrying in the background and Connect
// returns nil; publishes made meanwhile are queued by paho.
func (c *Client) Connect(ctx context.Context) error {
	c.client = mqtt.NewClient(c.options())

	slog.Info("connecting to mqtt broker", "broker", c.broker)

	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", c.broker, err)
		}
	case <-time.After(c.config.ConnectTimeout):
		slog.Warn("mqtt broker not reachable yet, retrying in background", "broker", c.broker)
	case <-ctx.Done():
		c.client.Disconnect(0)
		return ctx.Err()
	}

	return nil
}

// Publish hands payload to paho and returns without waiting for delivery.
// An error is returned only when paho rejects the message outright.
func (c *Client) Publish(topic string, payload []byte) error {
	if c.client == nil {
		c.failed.Add(1)
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.config.QoS, c.config.Retain, payload)
	c.published.Add(1)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.failed.Add(1)
			return err
		}
		c.delivered.Add(1)
		return nil
	default:
	}

	go c.watch(topic, token)
	return nil
}

func (c *Client) watch(topic string, token mqtt.Token) {
	if !token.WaitTimeout(c.config.PublishTimeout) {
		c.failed.Add(1)
		slog.Warn("mqtt publish not confirmed", "topic", topic, "timeout", c.config.PublishTimeout)
		return
	}
	if err := token.Error(); err != nil {
		c.failed.Add(1)
		slog.Warn("mqtt publish failed", "topic", topic, "error", err)
		return
	}
	c.delivered.Add(1)
}

// IsConnected reports the last state seen by the connection handlers.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Disconnect closes the connection, allowing 250ms for in-flight messages.
func (c *Client) Disconnect() {
	if c.client != nil {
		c.client.Disconnect(250)
		slog.Info("mqtt disconnected", "broker", c.broker)
	}
	c.connected.Store(false)
}

// Stats returns publish counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected: c.IsConnected(),
		Published: c.published.Load(),
		Delivered: c.delivered.Load(),
		Failed:    c.failed.Load(),
	}
}
