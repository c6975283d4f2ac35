// Package builder derives the published documents from a registry snapshot.
// All functions are pure and preserve snapshot order.
package builder

import (
	"github.com/ghalamif/AegisGate/internal/app/registry"
	"github.com/ghalamif/AegisGate/internal/domain"
)

// DeviceInfo returns one record per registered device.
func DeviceInfo(snap registry.Snapshot) []domain.DeviceInfo {
	out := make([]domain.DeviceInfo, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		out = append(out, domain.DeviceInfo{
			DeviceSN:     d.SerialNumber,
			PLCProtocol:  d.Protocol,
			IPAddress:    d.IP,
			Port:         d.Port,
			SlaveAddress: d.SlaveAddress,
			Endian:       d.Endian,
		})
	}
	return out
}

// TagConfiguration nests collections under their device and tags under their
// collection. Collections or tags whose parent is not registered are left out.
func TagConfiguration(snap registry.Snapshot) []domain.TagConfiguration {
	tagsByCollection := make(map[string][]domain.TagConfig, len(snap.Collections))
	for _, t := range snap.Tags {
		tagsByCollection[t.CollectionID] = append(tagsByCollection[t.CollectionID], domain.TagConfig{
			Tag:         t.Name,
			Address:     t.Address,
			ValueType:   t.ValueType,
			AccessLevel: t.AccessLevel,
			Description: t.Description,
			Unit:        t.Unit,
			Mode:        t.Mode,
		})
	}

	out := make([]domain.TagConfiguration, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		cols := make([]domain.CollectionConfiguration, 0)
		for _, c := range snap.Collections {
			if c.DeviceNodeID != d.NodeID {
				continue
			}
			tags := tagsByCollection[c.NodeID]
			if tags == nil {
				tags = []domain.TagConfig{}
			}
			cols = append(cols, domain.CollectionConfiguration{
				ID:              c.UUID,
				CollectionName:  c.Name,
				SampleRate:      c.SampleRate,
				PublishInterval: c.PublishInterval,
				TagData:         tags,
			})
		}
		out = append(out, domain.TagConfiguration{
			DeviceSN:    d.SerialNumber,
			Collections: cols,
		})
	}
	return out
}
