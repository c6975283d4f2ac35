package aegisgate

import (
	"context"
	"errors"
	"sync"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

var (
	// ErrSourceNotStarted is returned when events are pushed before the runtime started the source.
	ErrSourceNotStarted = errors.New("aegisgate: external source not started")
	// ErrSourceStopped is returned once the runtime stopped the source.
	ErrSourceStopped = errors.New("aegisgate: external source stopped")
)

// ExternalSource lets embedding code act as the tag source: Define announces
// a tag, Set re-emits a reading as a tag-value event. Pass it to the runtime
// with WithTagSource.
type ExternalSource struct {
	mu      sync.RWMutex
	out     chan<- domain.Event
	stopped chan struct{}
}

func NewExternalSource() *ExternalSource {
	return &ExternalSource{}
}

func (s *ExternalSource) Start(out chan<- domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return errors.New("aegisgate: external source already started")
	}
	s.out = out
	s.stopped = make(chan struct{})
	return nil
}

func (s *ExternalSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped != nil {
		select {
		case <-s.stopped:
		default:
			close(s.stopped)
		}
	}
	return nil
}

// Define emits a tag-definition event. It blocks while the event buffer is
// full, until ctx ends or the source stops.
func (s *ExternalSource) Define(ctx context.Context, def TagDefinition) error {
	return s.emit(ctx, domain.DefinitionEvent(def))
}

// Set emits a tag-value event for the tag id.
func (s *ExternalSource) Set(ctx context.Context, id string, value any) error {
	return s.emit(ctx, domain.ValueEvent(id, value))
}

func (s *ExternalSource) emit(ctx context.Context, ev domain.Event) error {
	s.mu.RLock()
	out, stopped := s.out, s.stopped
	s.mu.RUnlock()
	if out == nil {
		return ErrSourceNotStarted
	}

	select {
	case <-stopped:
		return ErrSourceStopped
	default:
	}

	select {
	case out <- ev:
		return nil
	case <-stopped:
		return ErrSourceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.TagSource = (*ExternalSource)(nil)
