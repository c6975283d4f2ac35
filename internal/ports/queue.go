package ports

import "github.com/ghalamif/AegisGate/internal/domain"

// MessageQueue buffers messages between the publishers and the downstream sink.
type MessageQueue interface {
	Enqueue(m domain.Message) bool
	DequeueBatch(max int) []domain.Message
	Len() int
}
