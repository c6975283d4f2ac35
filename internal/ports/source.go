package ports

import "github.com/ghalamif/AegisGate/internal/domain"

// TagSource produces tag-definition and tag-value events (OPC UA, simulators,
// embedding code).
type TagSource interface {
	Start(out chan<- domain.Event) error
	Stop() error
}
