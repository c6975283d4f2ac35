// Package directory resolves device and collection node identifiers into the
// metadata the gateway publishes. Static serves entries from configuration,
// Postgres reads them from two lookup tables.
package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

type Static struct {
	devices     map[string]domain.Device
	collections map[string]domain.Collection
}

// NewStatic indexes the entries by node id. Collections without a UUID get a
// random one so the TagConfiguration document always carries an Id.
func NewStatic(devices []domain.Device, collections []domain.Collection) (*Static, error) {
	s := &Static{
		devices:     make(map[string]domain.Device, len(devices)),
		collections: make(map[string]domain.Collection, len(collections)),
	}
	for i, d := range devices {
		if d.NodeID == "" {
			return nil, fmt.Errorf("device %d: node_id is required", i)
		}
		if _, dup := s.devices[d.NodeID]; dup {
			return nil, fmt.Errorf("duplicate device node_id %q", d.NodeID)
		}
		s.devices[d.NodeID] = d
	}
	for i, c := range collections {
		if c.NodeID == "" {
			return nil, fmt.Errorf("collection %d: node_id is required", i)
		}
		if _, dup := s.collections[c.NodeID]; dup {
			return nil, fmt.Errorf("duplicate collection node_id %q", c.NodeID)
		}
		if c.UUID == "" {
			// Derived from the node id so the collection keeps its Id across restarts.
			c.UUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.NodeID)).String()
		}
		s.collections[c.NodeID] = c
	}
	return s, nil
}

func (s *Static) ResolveDevice(_ context.Context, nodeID string) (domain.Device, error) {
	d, ok := s.devices[nodeID]
	if !ok {
		return domain.Device{}, fmt.Errorf("device %q: %w", nodeID, ports.ErrNodeNotFound)
	}
	return d, nil
}

func (s *Static) ResolveCollection(_ context.Context, nodeID string) (domain.Collection, error) {
	c, ok := s.collections[nodeID]
	if !ok {
		return domain.Collection{}, fmt.Errorf("collection %q: %w", nodeID, ports.ErrNodeNotFound)
	}
	return c, nil
}

var _ ports.NodeDirectory = (*Static)(nil)
