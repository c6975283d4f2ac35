package aegisgate

import (
	"github.com/ghalamif/AegisGate/internal/adapters/observability"
	"github.com/ghalamif/AegisGate/internal/adapters/opcua"
	"github.com/ghalamif/AegisGate/internal/app/config"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// GatewayConfig holds the gateway serial number and publish cadence.
	GatewayConfig = config.GatewayConfig
	// BrokerConfig holds the broker endpoint and credentials.
	BrokerConfig = config.BrokerConfig
	// Policy controls the forward queue thresholds.
	Policy = ports.Policy
	// DirectoryConfig selects and configures the node directory.
	DirectoryConfig = config.DirectoryConfig
	PostgresConfig  = config.PostgresConfig
	// OPCUAConfig holds connection + tag details for the OPC UA source.
	OPCUAConfig = opcua.Config
	// OPCUATagConfig binds an OPC UA node to a tag.
	OPCUATagConfig = opcua.TagConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	LogConfig     = observability.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes and validates YAML held in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
