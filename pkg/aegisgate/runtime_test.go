package aegisgate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/AegisGate/internal/adapters/mqtt"
	"github.com/ghalamif/AegisGate/internal/adapters/natsbroker"
	"github.com/ghalamif/AegisGate/internal/adapters/observability"
	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

func baseConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{SerialNumber: "GW001", PublishInterval: 10 * time.Millisecond},
		Broker:  BrokerConfig{URL: "tcp://localhost:1883", ClientID: "aegis-GW001"},
		Policy:  Policy{MaxQueueLen: 64, MaxBatchSize: 8, IdleSleep: time.Millisecond, OnQueueFull: "block"},
		Directory: DirectoryConfig{
			Source:      "static",
			Devices:     []Device{{NodeID: "D1", SerialNumber: "SN1", Protocol: "modbus-tcp", IP: "10.0.0.5", Port: 502, SlaveAddress: 1, Endian: "BE"}},
			Collections: []Collection{{NodeID: "C1", UUID: "u1", Name: "Fast", SampleRate: 1000, PublishInterval: 5000}},
		},
	}
}

func TestNewGatewayRuntimeWithCustomAdapters(t *testing.T) {
	src := NewExternalSource()
	sink := &stubSink{}
	q := &stubQueue{}
	obs := &stubObservability{}

	rt, err := NewGatewayRuntime(baseConfig(),
		WithTagSource(src),
		WithDirectory(&stubDirectory{}),
		WithDialer(&stubDialer{conn: &recordingConn{}}),
		WithSink(sink),
		WithMessageQueue(q),
		WithObservability(obs),
	)
	if err != nil {
		t.Fatalf("NewGatewayRuntime returned error: %v", err)
	}
	if rt.source != src {
		t.Fatalf("expected custom source to be used")
	}
	if rt.sink != sink {
		t.Fatalf("expected custom sink to be used")
	}
	if rt.queue != q {
		t.Fatalf("expected custom queue to be used")
	}
	if rt.obs != obs {
		t.Fatalf("expected custom observability to be used")
	}
	if rt.forwarder == nil {
		t.Fatalf("expected forwarder when a sink is configured")
	}
	if rt.db != nil {
		t.Fatalf("expected no db for a custom directory")
	}
}

func TestNewGatewayRuntimeDefaults(t *testing.T) {
	rt, err := NewGatewayRuntime(baseConfig())
	if err != nil {
		t.Fatalf("NewGatewayRuntime returned error: %v", err)
	}
	if _, ok := rt.obs.(*observability.PromObs); !ok {
		t.Fatalf("expected prometheus observability, got %T", rt.obs)
	}
	if rt.source != nil {
		t.Fatalf("expected no source without opcua config")
	}
	if rt.forwarder != nil || rt.queue != nil {
		t.Fatalf("expected no forward queue without a sink")
	}
	if rt.Stats().Broker != ports.StateDisconnected {
		t.Fatalf("expected idle broker before Run, got %s", rt.Stats().Broker)
	}
}

func TestNewGatewayRuntimeRejectsBadInput(t *testing.T) {
	if _, err := NewGatewayRuntime(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	cfg := baseConfig()
	cfg.Gateway.SerialNumber = ""
	if _, err := NewGatewayRuntime(cfg, WithDialer(&stubDialer{})); err == nil {
		t.Fatalf("expected error for missing serial number")
	}

	cfg = baseConfig()
	cfg.Directory.Devices = append(cfg.Directory.Devices, Device{NodeID: "D1"})
	if _, err := NewGatewayRuntime(cfg); err == nil {
		t.Fatalf("expected error for duplicate directory entry")
	}
}

func TestNewDialerPicksTransport(t *testing.T) {
	d, err := newDialer(BrokerConfig{URL: "nats://localhost:4222", ClientID: "c"})
	if err != nil {
		t.Fatalf("newDialer: %v", err)
	}
	if _, ok := d.(*natsbroker.Dialer); !ok {
		t.Fatalf("expected nats dialer, got %T", d)
	}

	d, err = newDialer(BrokerConfig{URL: "ssl://broker:8883", ClientID: "c"})
	if err != nil {
		t.Fatalf("newDialer: %v", err)
	}
	if _, ok := d.(*mqtt.Dialer); !ok {
		t.Fatalf("expected mqtt dialer, got %T", d)
	}
}

func TestRunPublishesAndForwards(t *testing.T) {
	conn := &recordingConn{}
	src := NewExternalSource()
	sink, ch, closeSink := NewChannelSink("test", 64)
	now := time.UnixMilli(1_700_000_000_123)

	rt, err := NewGatewayRuntime(baseConfig(),
		WithTagSource(src),
		WithDialer(&stubDialer{conn: conn}),
		WithSink(sink),
		WithObservability(&stubObservability{}),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewGatewayRuntime returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	def := TagDefinition{ID: "T1", Name: "Temp", Address: "40001", ValueType: "float", DeviceID: "D1", CollectionID: "C1"}
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := src.Define(ctx, def)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrSourceNotStarted) || time.Now().After(deadline) {
			t.Fatalf("define: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if err := src.Set(ctx, "T1", 23); err != nil {
		t.Fatalf("set: %v", err)
	}

	want := `[{"Cache":false,"DeviceSN":"SN1","TagData":[{"Time":1700000000123,"Temp":23}]}]`
	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !seen["GW001/TagValues"] {
		select {
		case batch := <-ch:
			for _, m := range batch {
				if m.Topic == "GW001/TagValues" {
					raw, err := json.Marshal(m.Payload)
					if err != nil {
						t.Fatalf("marshal forwarded payload: %v", err)
					}
					if string(raw) != want {
						continue
					}
				}
				seen[m.Topic] = true
			}
		case <-timeout:
			t.Fatalf("timed out waiting for forwarded values, saw %v", seen)
		}
	}
	if !seen["GW001/DeviceInfo"] || !seen["GW001/TagConfiguration"] {
		t.Fatalf("expected configuration documents downstream, saw %v", seen)
	}
	if conn.count("GW001/TagConfiguration") == 0 {
		t.Fatalf("expected configuration on the broker")
	}

	cancel()
	go func() {
		for range ch {
		}
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	closeSink()

	if !conn.isClosed() {
		t.Fatalf("expected broker connection closed on shutdown")
	}
	if err := src.Set(context.Background(), "T1", 1); !errors.Is(err, ErrSourceStopped) {
		t.Fatalf("expected stopped source, got %v", err)
	}
}

func TestMetricsServerRoutes(t *testing.T) {
	rt, err := NewGatewayRuntime(baseConfig(), WithDialer(&stubDialer{conn: &recordingConn{}}))
	if err != nil {
		t.Fatalf("NewGatewayRuntime returned error: %v", err)
	}
	srv := rt.newMetricsServer(":0")

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response: %d %q", rec.Code, rec.Body.String())
	}

	rt.recordGauges()
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "aegis_broker_connected 0") {
		t.Fatalf("expected gateway gauges in metrics output")
	}
}

func TestRecordGauges(t *testing.T) {
	obs := &stubObservability{}
	q := &stubQueue{n: 3}
	rt, err := NewGatewayRuntime(baseConfig(),
		WithDialer(&stubDialer{conn: &recordingConn{}}),
		WithSink(&stubSink{}),
		WithMessageQueue(q),
		WithObservability(obs),
	)
	if err != nil {
		t.Fatalf("NewGatewayRuntime returned error: %v", err)
	}
	def := domain.TagDefinition{ID: "T1", Name: "Temp", DeviceID: "D1", CollectionID: "C1"}
	if err := rt.Gateway().HandleEvent(context.Background(), domain.DefinitionEvent(def)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	rt.recordGauges()
	for name, want := range map[string]float64{
		"aegis_devices":              1,
		"aegis_collections":          1,
		"aegis_tags":                 1,
		"aegis_values":               0,
		"aegis_broker_connected":     0,
		"aegis_forward_queue_length": 3,
	} {
		if got := obs.gauge(name); got != want {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}
}

type stubSink struct{}

func (s *stubSink) WriteBatch([]Message) error { return nil }
func (s *stubSink) Name() string { return "stub" }

type stubQueue struct{ n int }

func (s *stubQueue) Enqueue(Message) bool { return true }
func (s *stubQueue) DequeueBatch(int) []Message { return nil }
func (s *stubQueue) Len() int { return s.n }

type stubDirectory struct{}

func (s *stubDirectory) ResolveDevice(context.Context, string) (Device, error) {
	return Device{}, ErrNodeNotFound
}

func (s *stubDirectory) ResolveCollection(context.Context, string) (Collection, error) {
	return Collection{}, ErrNodeNotFound
}

type stubDialer struct {
	conn Connection
}

func (d *stubDialer) Dial(context.Context, ports.ConnectionObserver) (Connection, error) {
	if d.conn == nil {
		return nil, errors.New("no broker")
	}
	return d.conn, nil
}

type recordingConn struct {
	mu     sync.Mutex
	topics []string
	closed bool
}

func (c *recordingConn) Publish(_ context.Context, topic string, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) count(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type stubObservability struct {
	mu     sync.Mutex
	gauges map[string]float64
}

func (s *stubObservability) LogInfo(string, ...Field) {}
func (s *stubObservability) LogError(string, error, ...Field) {}
func (s *stubObservability) LogCritical(string, error, ...Field) {}
func (s *stubObservability) IncCounter(string, float64) {}
func (s *stubObservability) ObserveLatency(string, float64) {}

func (s *stubObservability) SetGauge(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gauges == nil {
		s.gauges = map[string]float64{}
	}
	s.gauges[name] = v
}

func (s *stubObservability) gauge(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gauges[name]
}
