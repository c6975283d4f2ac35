package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// RunForwardPipeline drains q in batches into sink until ctx ends. Whatever is
// still queued at that point gets one final write.
func RunForwardPipeline(ctx context.Context, q ports.MessageQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) error {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}

	for {
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				flush(q, sink, obs)
				return nil
			case <-time.After(idle):
			}
			continue
		}
		writeBatch(sink, batch, obs)
	}
}

func flush(q ports.MessageQueue, sink ports.Sink, obs ports.Observability) {
	if batch := q.DequeueBatch(0); len(batch) > 0 {
		writeBatch(sink, batch, obs)
	}
}

func writeBatch(sink ports.Sink, batch []domain.Message, obs ports.Observability) {
	if err := sink.WriteBatch(batch); err != nil {
		obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: sink.Name()},
			ports.Field{Key: "messages", Value: len(batch)},
		)
		obs.IncCounter("aegis_forward_dropped_total", float64(len(batch)))
		return
	}
	obs.IncCounter("aegis_forwarded_total", float64(len(batch)))
}
