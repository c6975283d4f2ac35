package ports

import (
	"context"
	"errors"

	"github.com/ghalamif/AegisGate/internal/domain"
)

// ErrNodeNotFound is returned by a NodeDirectory for unknown node identifiers.
var ErrNodeNotFound = errors.New("node not found")

// NodeDirectory maps device and collection node identifiers to their metadata.
type NodeDirectory interface {
	ResolveDevice(ctx context.Context, nodeID string) (domain.Device, error)
	ResolveCollection(ctx context.Context, nodeID string) (domain.Collection, error)
}
