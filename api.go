package aegisgate

import (
	base "github.com/ghalamif/AegisGate/pkg/aegisgate"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrSourceNotStarted  = base.ErrSourceNotStarted
	ErrSourceStopped     = base.ErrSourceStopped
	ErrNodeNotFound      = base.ErrNodeNotFound
	ErrUnresolvable      = base.ErrUnresolvable
)

// Type aliases so consumers can import github.com/ghalamif/AegisGate directly.
type (
	Config               = base.Config
	GatewayConfig        = base.GatewayConfig
	BrokerConfig         = base.BrokerConfig
	Policy               = base.Policy
	DirectoryConfig      = base.DirectoryConfig
	OPCUAConfig          = base.OPCUAConfig
	OPCUATagConfig       = base.OPCUATagConfig
	MetricsConfig        = base.MetricsConfig
	LogConfig            = base.LogConfig
	Flow                 = base.Flow
	FlowOption           = base.FlowOption
	StreamInOption       = base.StreamInOption
	StreamOutOption      = base.StreamOutOption
	GatewayRuntime       = base.GatewayRuntime
	GatewayRuntimeOption = base.GatewayRuntimeOption
	Device               = base.Device
	Collection           = base.Collection
	TagDefinition        = base.TagDefinition
	Event                = base.Event
	Message              = base.Message
	MessageBatchSink     = base.MessageBatchSink
	TagSource            = base.TagSource
	NodeDirectory        = base.NodeDirectory
	Dialer               = base.Dialer
	Connection           = base.Connection
	Sink                 = base.Sink
	MessageQueue         = base.MessageQueue
	Observability        = base.Observability
	Field                = base.Field
	Stats                = base.Stats
	ExternalSource       = base.ExternalSource
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...GatewayRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(src TagSource) StreamInOption {
	return base.StreamInSource(src)
}

func StreamInDirectory(dir NodeDirectory) StreamInOption {
	return base.StreamInDirectory(dir)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutCallback(name string, fn MessageBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutQueue(q MessageQueue) StreamOutOption {
	return base.StreamOutQueue(q)
}

func StreamOutDialer(d Dialer) StreamOutOption {
	return base.StreamOutDialer(d)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

// Gateway runtime and options.
func NewGatewayRuntime(cfg *Config, opts ...GatewayRuntimeOption) (*GatewayRuntime, error) {
	return base.NewGatewayRuntime(cfg, opts...)
}

func WithTagSource(src TagSource) GatewayRuntimeOption {
	return base.WithTagSource(src)
}

func WithDirectory(dir NodeDirectory) GatewayRuntimeOption {
	return base.WithDirectory(dir)
}

func WithDialer(d Dialer) GatewayRuntimeOption {
	return base.WithDialer(d)
}

func WithSink(s Sink) GatewayRuntimeOption {
	return base.WithSink(s)
}

func WithMessageQueue(q MessageQueue) GatewayRuntimeOption {
	return base.WithMessageQueue(q)
}

func WithObservability(obs Observability) GatewayRuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn MessageBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Message, func()) {
	return base.NewChannelSink(name, buffer)
}

// External tag source.
func NewExternalSource() *ExternalSource {
	return base.NewExternalSource()
}
