package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Topic suffixes appended to the gateway serial number.
const (
	TopicDeviceInfo       = "DeviceInfo"
	TopicTagConfiguration = "TagConfiguration"
	TopicTagValues        = "TagValues"
)

// Topic returns "<serialNumber>/<suffix>".
func Topic(serialNumber, suffix string) string {
	return serialNumber + "/" + suffix
}

// DeviceInfo is one entry of the DeviceInfo document.
type DeviceInfo struct {
	DeviceSN     string `json:"DeviceSN"`
	PLCProtocol  string `json:"PLCProtocol"`
	IPAddress    string `json:"IP Address"`
	Port         int    `json:"Port"`
	SlaveAddress int    `json:"SlaveAddress"`
	Endian       string `json:"Endian"`
}

// TagConfiguration is one device entry of the TagConfiguration document.
type TagConfiguration struct {
	DeviceSN    string                    `json:"DeviceSN"`
	Collections []CollectionConfiguration `json:"Collections"`
}

type CollectionConfiguration struct {
	ID              string      `json:"Id"`
	CollectionName  string      `json:"CollectionName"`
	SampleRate      int         `json:"SampleRate"`
	PublishInterval int         `json:"PublishInterval"`
	TagData         []TagConfig `json:"TagData"`
}

type TagConfig struct {
	Tag         string `json:"Tag"`
	Address     string `json:"Address"`
	ValueType   string `json:"ValueType"`
	AccessLevel string `json:"AccessLevel"`
	Description string `json:"Description"`
	Unit        string `json:"Unit"`
	Mode        string `json:"Mode"`
}

// DeviceValues is one device entry of the TagValues document.
type DeviceValues struct {
	Cache    bool        `json:"Cache"`
	DeviceSN string      `json:"DeviceSN"`
	TagData  []TagRecord `json:"TagData"`
}

// TagField is a single "<tag name>: value" pair of a TagRecord.
type TagField struct {
	Name  string
	Value any
}

// TagRecord holds the values of one collection at a point in time. It encodes
// as a flat JSON object: "Time" first, then one key per field in order.
type TagRecord struct {
	Time   int64
	Fields []TagField
}

// Get returns the value stored under name.
func (r TagRecord) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r TagRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"Time":`)
	ts, err := json.Marshal(r.Time)
	if err != nil {
		return nil, err
	}
	buf.Write(ts)
	for _, f := range r.Fields {
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Message is a published document as delivered to downstream sinks.
type Message struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Published time.Time `json:"published"`
}
