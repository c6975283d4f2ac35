// Package natsbroker publishes gateway documents over core NATS for
// deployments that front the plant network with a NATS cluster instead of an
// MQTT broker. Topics are used verbatim as subjects.
package natsbroker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/AegisGate/internal/ports"
)

type Config struct {
	URL            string
	ClientName     string
	Account        string
	Password       string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("nats url is required")
	}
	return nil
}

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

// Dial returns once the client holds a live server connection. The client
// keeps retrying a failed initial connect in the background, so Dial waits
// for the first connect callback or for ctx.
func (d *Dialer) Dial(ctx context.Context, observe ports.ConnectionObserver) (ports.Connection, error) {
	var once sync.Once
	up := make(chan struct{})
	markUp := func() { once.Do(func() { close(up) }) }

	observe(ports.EventConnecting, nil)
	nc, err := nats.Connect(d.cfg.URL, d.options(observe, markUp)...)
	if err != nil {
		observe(ports.EventError, err)
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if nc.IsConnected() {
		markUp()
	}

	select {
	case <-up:
		return &connection{nc: nc, flushTimeout: d.cfg.ConnectTimeout}, nil
	case <-ctx.Done():
		nc.Close()
		return nil, ctx.Err()
	}
}

func (d *Dialer) options(observe ports.ConnectionObserver, markUp func()) []nats.Option {
	opts := []nats.Option{
		nats.Timeout(d.cfg.ConnectTimeout),
		nats.ReconnectWait(d.cfg.ReconnectWait),
		nats.MaxReconnects(d.cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(*nats.Conn) {
			markUp()
			observe(ports.EventConnected, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			observe(ports.EventOffline, err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			markUp()
			observe(ports.EventConnected, nil)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			observe(ports.EventClosed, nil)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			observe(ports.EventError, err)
		}),
	}
	if d.cfg.Account != "" {
		opts = append(opts, nats.UserInfo(d.cfg.Account, d.cfg.Password))
	}
	if d.cfg.ClientName != "" {
		opts = append(opts, nats.Name(d.cfg.ClientName))
	}
	return opts
}

type connection struct {
	nc           *nats.Conn
	flushTimeout time.Duration
}

// Publish buffers the message in the client and flushes it, so a nil error
// means the server received it.
func (c *connection) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := c.nc.Publish(topic, payload); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.flushTimeout)
		defer cancel()
	}
	return c.nc.FlushWithContext(ctx)
}

func (c *connection) Close() error {
	return c.nc.Drain()
}

var _ ports.Dialer = (*Dialer)(nil)
