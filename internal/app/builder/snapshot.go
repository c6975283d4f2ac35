package builder

import (
	"time"

	"github.com/ghalamif/AegisGate/internal/app/registry"
	"github.com/ghalamif/AegisGate/internal/domain"
)

// ValueLookup is the read side of the value store.
type ValueLookup interface {
	Get(id string) (any, bool)
}

// TagValues builds the live-value document at ts. Every collection of a device
// yields one record; a tag contributes a field only when it belongs to both the
// device and the collection and a value is stored for it.
func TagValues(snap registry.Snapshot, values ValueLookup, ts time.Time) []domain.DeviceValues {
	stamp := ts.UnixMilli()

	out := make([]domain.DeviceValues, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		records := make([]domain.TagRecord, 0)
		for _, c := range snap.Collections {
			if c.DeviceNodeID != d.NodeID {
				continue
			}
			records = append(records, buildRecord(snap.Tags, values, d.NodeID, c.NodeID, stamp))
		}
		out = append(out, domain.DeviceValues{
			Cache:    false,
			DeviceSN: d.SerialNumber,
			TagData:  records,
		})
	}
	return out
}

func buildRecord(tags []domain.TagDefinition, values ValueLookup, deviceID, collectionID string, stamp int64) domain.TagRecord {
	rec := domain.TagRecord{Time: stamp}
	pos := make(map[string]int)
	for _, t := range tags {
		if t.DeviceID != deviceID || t.CollectionID != collectionID {
			continue
		}
		v, ok := values.Get(t.ID)
		if !ok {
			continue
		}
		if i, dup := pos[t.Name]; dup {
			rec.Fields[i].Value = v
			continue
		}
		pos[t.Name] = len(rec.Fields)
		rec.Fields = append(rec.Fields, domain.TagField{Name: t.Name, Value: v})
	}
	return rec
}
