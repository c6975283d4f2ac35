// Package config loads the gateway's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/AegisGate/internal/adapters/observability"
	"github.com/ghalamif/AegisGate/internal/adapters/opcua"
	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

const (
	DirectoryStatic   = "static"
	DirectoryPostgres = "postgres"

	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

type Config struct {
	Gateway   GatewayConfig           `yaml:"gateway"`
	Broker    BrokerConfig            `yaml:"broker"`
	Policy    ports.Policy            `yaml:"policy"`
	Directory DirectoryConfig         `yaml:"directory"`
	OPCUA     *opcua.Config           `yaml:"opcua"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Log       observability.LogConfig `yaml:"log"`
}

type GatewayConfig struct {
	SerialNumber    string        `yaml:"serial_number" validate:"required"`
	PublishInterval time.Duration `yaml:"publish_interval" validate:"gte=0"`
}

type BrokerConfig struct {
	URL                  string        `yaml:"url" validate:"required"`
	ClientID             string        `yaml:"client_id"`
	Account              string        `yaml:"account"`
	Password             string        `yaml:"password"`
	QoS                  byte          `yaml:"qos" validate:"lte=2"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	KeepAlive            time.Duration `yaml:"keep_alive"`
	ConnectRetryInterval time.Duration `yaml:"connect_retry_interval"`
}

// Transport picks the broker client from the URL scheme.
func (b BrokerConfig) Transport() string {
	if strings.HasPrefix(strings.ToLower(b.URL), "nats://") {
		return TransportNATS
	}
	return TransportMQTT
}

type DirectoryConfig struct {
	Source      string              `yaml:"source" validate:"oneof=static postgres"`
	Devices     []domain.Device     `yaml:"devices"`
	Collections []domain.Collection `yaml:"collections"`
	Postgres    PostgresConfig      `yaml:"postgres"`
}

type PostgresConfig struct {
	ConnString      string `yaml:"conn_string"`
	DeviceTable     string `yaml:"device_table"`
	CollectionTable string `yaml:"collection_table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

var validate = validator.New()

var brokerSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true,
	"ws": true, "wss": true, "nats": true,
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes raw YAML, fills defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gateway.PublishInterval == 0 {
		c.Gateway.PublishInterval = time.Second
	}
	if c.Broker.ClientID == "" && c.Gateway.SerialNumber != "" {
		c.Broker.ClientID = "aegis-" + c.Gateway.SerialNumber
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Directory.Source == "" {
		c.Directory.Source = DirectoryStatic
	}
	if c.Directory.Postgres.DeviceTable == "" {
		c.Directory.Postgres.DeviceTable = "devices"
	}
	if c.Directory.Postgres.CollectionTable == "" {
		c.Directory.Postgres.CollectionTable = "collections"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.OPCUA != nil {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	u, err := url.Parse(c.Broker.URL)
	if err != nil {
		return fmt.Errorf("broker.url: %w", err)
	}
	if !brokerSchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("broker.url: unsupported scheme %q", u.Scheme)
	}

	if c.Directory.Source == DirectoryPostgres && c.Directory.Postgres.ConnString == "" {
		return errors.New("directory.postgres.conn_string is required")
	}
	if c.OPCUA != nil {
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	}
	return nil
}
