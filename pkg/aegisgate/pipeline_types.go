package aegisgate

import (
	"github.com/ghalamif/AegisGate/internal/app/gateway"
	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// Device and Collection are the node metadata a NodeDirectory resolves.
type (
	Device     = domain.Device
	Collection = domain.Collection
)

// TagDefinition is the static metadata of one tag.
type TagDefinition = domain.TagDefinition

// Event is one tag-definition or tag-value message from a TagSource.
type Event = domain.Event

// Message is a published document as handed to sinks.
type Message = domain.Message

// TagSource feeds tag definitions and values into the gateway (OPC UA, simulators, embedding code).
type TagSource = ports.TagSource

// NodeDirectory resolves device and collection node ids.
type NodeDirectory = ports.NodeDirectory

// Dialer opens broker sessions; Connection is one such session.
type (
	Dialer     = ports.Dialer
	Connection = ports.Connection
)

type ConnectionState = ports.ConnectionState

// MessageQueue is the bounded queue between the publishers and the sink.
type MessageQueue = ports.MessageQueue

// Sink consumes batches of published documents downstream of the gateway.
type Sink = ports.Sink

// Observability emits metrics/logs about ingestion, publishing and forwarding.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// Stats is a point-in-time view of the gateway.
type Stats = gateway.Stats

// MessageBatchSink is invoked with ordered batches dequeued from the forward queue.
type MessageBatchSink func([]Message) error

var (
	ErrNodeNotFound      = ports.ErrNodeNotFound
	ErrUnresolvable      = gateway.ErrUnresolvable
	ErrInvalidDefinition = gateway.ErrInvalidDefinition
)

// Event constructors.
func DefinitionEvent(def TagDefinition) Event { return domain.DefinitionEvent(def) }

func ValueEvent(id string, value any) Event { return domain.ValueEvent(id, value) }
