package domain

// Device is a field endpoint (PLC, RTU) as resolved from the node directory.
type Device struct {
	NodeID       string `json:"node_id" yaml:"node_id"`
	SerialNumber string `json:"serial_number" yaml:"serial_number"`
	Protocol     string `json:"protocol" yaml:"protocol"`
	IP           string `json:"ip" yaml:"ip"`
	Port         int    `json:"port" yaml:"port"`
	SlaveAddress int    `json:"slave_address" yaml:"slave_address"`
	Endian       string `json:"endian" yaml:"endian"`
}

// Collection groups tags of one device that share a sample and publish cadence.
// DeviceNodeID is filled in by the gateway from the tag definition that first
// referenced the collection.
type Collection struct {
	NodeID          string `json:"node_id" yaml:"node_id"`
	DeviceNodeID    string `json:"device_node_id" yaml:"-"`
	UUID            string `json:"uuid" yaml:"uuid"`
	Name            string `json:"name" yaml:"name"`
	SampleRate      int    `json:"sample_rate" yaml:"sample_rate"`
	PublishInterval int    `json:"publish_interval" yaml:"publish_interval"`
}

// TagDefinition is the static metadata of one measurable point.
type TagDefinition struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	ValueType    string `json:"valueType"`
	AccessLevel  string `json:"accessLevel"`
	Mode         string `json:"mode"`
	Description  string `json:"description"`
	Unit         string `json:"unit"`
	DeviceID     string `json:"device"`
	CollectionID string `json:"collection"`
}

// TagValue is the latest reading for the tag with the same ID.
type TagValue struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// EventKind mirrors the message topics emitted by tag sources.
type EventKind string

const (
	EventTagDefinition EventKind = "tag-definition"
	EventTagValue      EventKind = "tag-value"
)

// Event is one message from a tag source. Only the field matching Kind is set.
type Event struct {
	Kind       EventKind     `json:"topic"`
	Definition TagDefinition `json:"definition,omitempty"`
	Value      TagValue      `json:"value,omitempty"`
}

// DefinitionEvent wraps def into a tag-definition event.
func DefinitionEvent(def TagDefinition) Event {
	return Event{Kind: EventTagDefinition, Definition: def}
}

// ValueEvent wraps a reading into a tag-value event.
func ValueEvent(id string, value any) Event {
	return Event{Kind: EventTagValue, Value: TagValue{ID: id, Value: value}}
}
