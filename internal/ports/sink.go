package ports

import "github.com/ghalamif/AegisGate/internal/domain"

// Sink receives published documents forwarded downstream of the gateway.
type Sink interface {
	WriteBatch(msgs []domain.Message) error
	Name() string
}
