package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/AegisGate/internal/ports"
)

func TestNewDialerAppliesDefaults(t *testing.T) {
	d, err := NewDialer(Config{URL: "tcp://localhost:1883", ClientID: "aegis-GW001"})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	if d.cfg.ConnectTimeout != 10*time.Second {
		t.Fatalf("expected default connect timeout 10s, got %s", d.cfg.ConnectTimeout)
	}
	if d.cfg.KeepAlive != 30*time.Second {
		t.Fatalf("expected default keep alive 30s, got %s", d.cfg.KeepAlive)
	}
	if d.cfg.ConnectRetryInterval != 5*time.Second {
		t.Fatalf("expected default retry interval 5s, got %s", d.cfg.ConnectRetryInterval)
	}
}

func TestNewDialerValidates(t *testing.T) {
	cases := []Config{
		{ClientID: "x"},
		{URL: "tcp://localhost:1883"},
		{URL: "tcp://localhost:1883", ClientID: "x", QoS: 3},
	}
	for _, cfg := range cases {
		if _, err := NewDialer(cfg); err == nil {
			t.Fatalf("expected validation error for %+v", cfg)
		}
	}
}

func TestClientOptionsCarryCredentialsAndRetry(t *testing.T) {
	d, err := NewDialer(Config{
		URL:            "tcp://broker.local:1883",
		ClientID:       "aegis-GW001",
		Account:        "gateway",
		Password:       "secret",
		ConnectTimeout: 3 * time.Second,
		KeepAlive:      20 * time.Second,
	})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}

	opts := d.clientOptions(func(ports.ConnectionEvent, error) {})

	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker.local:1883" {
		t.Fatalf("unexpected servers: %v", opts.Servers)
	}
	if opts.ClientID != "aegis-GW001" {
		t.Fatalf("expected client id aegis-GW001, got %s", opts.ClientID)
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Fatalf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Fatalf("expected auto reconnect and connect retry to be enabled")
	}
	if opts.ConnectTimeout != 3*time.Second {
		t.Fatalf("expected connect timeout 3s, got %s", opts.ConnectTimeout)
	}
	if opts.KeepAlive != 20 {
		t.Fatalf("expected keep alive 20s, got %d", opts.KeepAlive)
	}
}

func TestClientOptionsAnonymous(t *testing.T) {
	d, err := NewDialer(Config{URL: "tcp://broker.local:1883", ClientID: "c"})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	opts := d.clientOptions(func(ports.ConnectionEvent, error) {})
	if opts.Username != "" || opts.Password != "" {
		t.Fatalf("expected anonymous session, got %q", opts.Username)
	}
}

func TestClientHandlersReportEvents(t *testing.T) {
	d, err := NewDialer(Config{URL: "tcp://broker.local:1883", ClientID: "c"})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}

	var events []ports.ConnectionEvent
	var lastErr error
	opts := d.clientOptions(func(ev ports.ConnectionEvent, err error) {
		events = append(events, ev)
		if err != nil {
			lastErr = err
		}
	})

	opts.OnConnect(nil)
	opts.OnConnectionLost(nil, errors.New("eof"))
	opts.OnReconnecting(nil, opts)

	want := []ports.ConnectionEvent{ports.EventConnected, ports.EventOffline, ports.EventReconnecting}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}
	if lastErr == nil || lastErr.Error() != "eof" {
		t.Fatalf("expected offline cause to be forwarded, got %v", lastErr)
	}
}
