package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

func TestEnqueueWithPolicyBlock(t *testing.T) {
	queue := &mockQueue{}
	queue.failures = 1

	pol := ports.Policy{
		OnQueueFull: "block",
		IdleSleep:   time.Millisecond,
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(queue, domain.Message{Topic: "t"}, pol, obs, nil); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if queue.calls != 2 {
		t.Fatalf("expected two enqueue attempts, got %d", queue.calls)
	}
}

func TestEnqueueWithPolicyDrop(t *testing.T) {
	queue := &mockQueue{failAlways: true}
	pol := ports.Policy{
		OnQueueFull: "drop",
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(queue, domain.Message{Topic: "t"}, pol, obs, nil); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if obs.errorCount() == 0 {
		t.Fatalf("expected drop to log an error")
	}
}

func TestEnqueueWithPolicyInvalid(t *testing.T) {
	queue := &mockQueue{failAlways: true}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(queue, domain.Message{}, ports.Policy{OnQueueFull: "spill"}, obs, nil); ok {
		t.Fatalf("expected unknown policy to fail")
	}
}

func TestForwarderCloseReleasesBlockedCaller(t *testing.T) {
	queue := &mockQueue{failAlways: true}
	obs := &mockObs{}
	f := NewForwarder(queue, ports.Policy{OnQueueFull: "block", IdleSleep: time.Millisecond}, obs)

	done := make(chan bool, 1)
	go func() { done <- f.Forward(domain.Message{Topic: "GW/TagValues"}) }()

	time.Sleep(10 * time.Millisecond)
	f.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected message to be dropped")
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked forward was not released")
	}
	if obs.counter("aegis_forward_dropped_total") != 1 {
		t.Fatalf("expected one dropped message")
	}
	f.Close()
}

func TestRunEventPipelineDeliversInOrder(t *testing.T) {
	src := &mockSource{events: []domain.Event{
		domain.DefinitionEvent(domain.TagDefinition{ID: "T1"}),
		domain.ValueEvent("T1", 1),
		domain.ValueEvent("T1", 2),
	}}
	h := &mockHandler{}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- RunEventPipeline(ctx, src, h, ports.Policy{}, &mockObs{}) }()

	deadline := time.Now().Add(time.Second)
	for h.len() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	got := h.snapshot()
	if len(got) != 3 || got[0].Kind != domain.EventTagDefinition || got[2].Value.Value != 2 {
		t.Fatalf("unexpected events: %+v", got)
	}
	if !src.stopped.Load() {
		t.Fatalf("expected source to be stopped")
	}
}

func TestRunEventPipelineStartError(t *testing.T) {
	src := &mockSource{startErr: errors.New("no endpoint")}
	err := RunEventPipeline(context.Background(), src, &mockHandler{}, ports.Policy{}, &mockObs{})
	if err == nil {
		t.Fatalf("expected start error")
	}
}

func TestRunForwardPipelineWritesAndFlushes(t *testing.T) {
	q := &sliceQueue{}
	for i := 0; i < 5; i++ {
		q.Enqueue(domain.Message{Topic: "GW/TagValues"})
	}
	sink := &mockSink{}
	obs := &mockObs{}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- RunForwardPipeline(ctx, q, sink, ports.Policy{MaxBatchSize: 2, IdleSleep: time.Millisecond}, obs)
	}()

	deadline := time.Now().Add(time.Second)
	for sink.total() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	if sink.total() != 5 {
		t.Fatalf("expected 5 forwarded messages, got %d", sink.total())
	}
	if sink.maxBatch() > 2 {
		t.Fatalf("batch size exceeded: %d", sink.maxBatch())
	}
	if obs.counter("aegis_forwarded_total") != 5 {
		t.Fatalf("expected forwarded counter 5, got %v", obs.counter("aegis_forwarded_total"))
	}
}

func TestRunForwardPipelineCountsSinkFailures(t *testing.T) {
	q := &sliceQueue{}
	q.Enqueue(domain.Message{Topic: "a"})
	q.Enqueue(domain.Message{Topic: "b"})
	sink := &mockSink{err: errors.New("downstream offline")}
	obs := &mockObs{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := RunForwardPipeline(ctx, q, sink, ports.Policy{}, obs); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if obs.counter("aegis_forward_dropped_total") != 2 {
		t.Fatalf("expected 2 dropped messages, got %v", obs.counter("aegis_forward_dropped_total"))
	}
	if obs.errorCount() == 0 {
		t.Fatalf("expected sink failure to be logged")
	}
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(domain.Message) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []domain.Message { return nil }
func (m *mockQueue) Len() int { return 0 }

type sliceQueue struct {
	mu   sync.Mutex
	data []domain.Message
}

func (q *sliceQueue) Enqueue(m domain.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = append(q.data, m)
	return true
}

func (q *sliceQueue) DequeueBatch(max int) []domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	if max == 0 {
		return nil
	}
	out := append([]domain.Message(nil), q.data[:max]...)
	q.data = q.data[max:]
	return out
}

func (q *sliceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

type mockSink struct {
	mu      sync.Mutex
	err     error
	batches []int
}

func (s *mockSink) WriteBatch(msgs []domain.Message) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, len(msgs))
	return nil
}

func (s *mockSink) Name() string { return "mock" }

func (s *mockSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += b
	}
	return n
}

func (s *mockSink) maxBatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := 0
	for _, b := range s.batches {
		if b > m {
			m = b
		}
	}
	return m
}

type mockSource struct {
	events   []domain.Event
	startErr error
	stopped  atomic.Bool
}

func (s *mockSource) Start(out chan<- domain.Event) error {
	if s.startErr != nil {
		return s.startErr
	}
	go func() {
		for _, ev := range s.events {
			out <- ev
		}
	}()
	return nil
}

func (s *mockSource) Stop() error {
	s.stopped.Store(true)
	return nil
}

type mockHandler struct {
	mu     sync.Mutex
	events []domain.Event
}

func (h *mockHandler) HandleEvent(_ context.Context, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *mockHandler) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *mockHandler) snapshot() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.events...)
}

type mockObs struct {
	mu       sync.Mutex
	errors   []error
	counters map[string]float64
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64) {}

func (m *mockObs) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}
