package queue

import (
	"sync"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// MemQueue is a bounded in-memory FIFO of published documents waiting for the
// downstream sink. A capacity of zero or less means unbounded.
type MemQueue struct {
	mu   sync.Mutex
	data []domain.Message
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	initial := capacity
	if initial <= 0 || initial > 1024 {
		initial = 1024
	}
	return &MemQueue{
		data: make([]domain.Message, 0, initial),
		cap:  capacity,
	}
}

// Enqueue appends m and reports false when the queue is full.
func (q *MemQueue) Enqueue(m domain.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cap > 0 && len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, m)
	return true
}

// DequeueBatch removes up to max messages from the head. max <= 0 takes all.
func (q *MemQueue) DequeueBatch(max int) []domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Message, max)
	copy(out, q.data[:max])
	n := copy(q.data, q.data[max:])
	clear(q.data[n:])
	q.data = q.data[:n]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.MessageQueue = (*MemQueue)(nil)
