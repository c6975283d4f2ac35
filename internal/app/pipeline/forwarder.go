package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// Forwarder puts published documents on the forward queue, applying the
// overflow policy when the queue is full.
type Forwarder struct {
	q   ports.MessageQueue
	pol ports.Policy
	obs ports.Observability

	stop     chan struct{}
	stopOnce sync.Once
}

func NewForwarder(q ports.MessageQueue, pol ports.Policy, obs ports.Observability) *Forwarder {
	return &Forwarder{q: q, pol: pol, obs: obs, stop: make(chan struct{})}
}

// Forward reports whether m was queued.
func (f *Forwarder) Forward(m domain.Message) bool {
	if enqueueWithPolicy(f.q, m, f.pol, f.obs, f.stop) {
		return true
	}
	f.obs.IncCounter("aegis_forward_dropped_total", 1)
	return false
}

// Close releases callers blocked on a full queue; their messages are dropped.
func (f *Forwarder) Close() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func enqueueWithPolicy(q ports.MessageQueue, m domain.Message, pol ports.Policy, obs ports.Observability, stop <-chan struct{}) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := q.Enqueue(m); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			select {
			case <-stop:
				obs.LogError("queue_full_drop", fmt.Errorf("forwarder closed while queue full, topic=%s", m.Topic))
				return false
			case <-time.After(sleep):
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
