package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/AegisGate/internal/ports"
)

// Config captures what is needed to open an MQTT session. It is fixed for the
// lifetime of the dialer.
type Config struct {
	URL                  string
	ClientID             string
	Account              string
	Password             string
	QoS                  byte
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	ConnectRetryInterval time.Duration
}

func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("broker url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("broker url: %w", err)
	}
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos %d out of range", c.QoS)
	}
	return nil
}

// Dialer opens paho sessions with auto-reconnect and connect-retry enabled, so
// Dial only returns once the broker accepted the session.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) (*Dialer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{cfg: cfg}, nil
}

func (d *Dialer) Dial(ctx context.Context, observe ports.ConnectionObserver) (ports.Connection, error) {
	client := paho.NewClient(d.clientOptions(observe))

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			observe(ports.EventError, err)
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}

	return &connection{client: client, qos: d.cfg.QoS, observe: observe}, nil
}

func (d *Dialer) clientOptions(observe ports.ConnectionObserver) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(d.cfg.URL).
		SetClientID(d.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(d.cfg.ConnectRetryInterval).
		SetConnectTimeout(d.cfg.ConnectTimeout).
		SetKeepAlive(d.cfg.KeepAlive).
		SetOnConnectHandler(func(paho.Client) {
			observe(ports.EventConnected, nil)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			observe(ports.EventOffline, err)
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			observe(ports.EventReconnecting, nil)
		}).
		SetConnectionAttemptHandler(func(_ *url.URL, tc *tls.Config) *tls.Config {
			observe(ports.EventConnecting, nil)
			return tc
		})

	if d.cfg.Account != "" {
		opts.SetUsername(d.cfg.Account)
		opts.SetPassword(d.cfg.Password)
	}
	return opts
}

type connection struct {
	client  paho.Client
	qos     byte
	observe ports.ConnectionObserver
}

// Publish sends payload with retained=false.
func (c *connection) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) Close() error {
	c.client.Disconnect(250)
	c.observe(ports.EventDisconnected, nil)
	return nil
}

var _ ports.Dialer = (*Dialer)(nil)
