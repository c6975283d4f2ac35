package pipeline

import (
	"context"
	"fmt"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

const defaultEventBuffer = 1024

// EventHandler absorbs tag-source events. The gateway implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

// RunEventPipeline starts src and feeds its events to h from a single
// goroutine until ctx ends, then stops the source. Handler errors are already
// logged by the handler and never reach the source.
func RunEventPipeline(ctx context.Context, src ports.TagSource, h EventHandler, pol ports.Policy, obs ports.Observability) error {
	buf := pol.MaxQueueLen
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	ch := make(chan domain.Event, buf)

	if err := src.Start(ch); err != nil {
		return fmt.Errorf("start tag source: %w", err)
	}
	obs.LogInfo("tag_source_started")

	defer func() {
		if err := src.Stop(); err != nil {
			obs.LogError("tag_source_stop_failed", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				obs.LogInfo("tag_source_closed")
				return nil
			}
			_ = h.HandleEvent(ctx, ev)
		}
	}
}
