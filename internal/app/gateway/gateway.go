// Package gateway turns tag-source events into registry state and publishes
// the derived documents to the broker and downstream consumers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/AegisGate/internal/app/broker"
	"github.com/ghalamif/AegisGate/internal/app/builder"
	"github.com/ghalamif/AegisGate/internal/app/registry"
	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

var (
	// ErrUnresolvable marks a tag definition whose device or collection the
	// node directory does not know. It wraps the directory error.
	ErrUnresolvable = errors.New("gateway: unresolvable node reference")
	// ErrInvalidDefinition marks a tag definition missing an identifier.
	ErrInvalidDefinition = errors.New("gateway: invalid tag definition")
	// ErrInvalidEvent marks events with an unknown kind or an empty value id.
	ErrInvalidEvent = errors.New("gateway: invalid event")
	ErrClosed       = errors.New("gateway: closed")
)

type Config struct {
	SerialNumber    string
	PublishInterval time.Duration
	// PublishTimeout bounds one broker publish once a connection is held.
	PublishTimeout time.Duration
	// RetryInterval spaces connection attempts of the value loop after a
	// failed dial.
	RetryInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.PublishInterval <= 0 {
		c.PublishInterval = time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
}

func (c *Config) validate() error {
	if c.SerialNumber == "" {
		return errors.New("gateway serial number is required")
	}
	return nil
}

// Forwarder hands published documents to the downstream consumer. It reports
// false when the message was dropped.
type Forwarder interface {
	Forward(m domain.Message) bool
}

type Option func(*Gateway)

// WithForwarder sends every published document downstream as well.
func WithForwarder(f Forwarder) Option {
	return func(g *Gateway) { g.fwd = f }
}

// WithClock replaces time.Now for value-snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

type Gateway struct {
	cfg    Config
	reg    *registry.Registry
	values *registry.ValueStore
	dir    ports.NodeDirectory
	mgr    *broker.Manager
	obs    ports.Observability
	fwd    Forwarder
	now    func() time.Time

	configSignal      chan struct{}
	deviceInfoPending atomic.Bool
	configDirty       atomic.Bool

	stopCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	closed   atomic.Bool
	closeErr error
	closeMu  sync.Mutex
}

// New builds a gateway with its own registry, value store and broker manager.
func New(cfg Config, dir ports.NodeDirectory, dialer ports.Dialer, obs ports.Observability, opts ...Option) (*Gateway, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, fmt.Errorf("node directory is required")
	}
	mgr, err := broker.NewManager(dialer, obs)
	if err != nil {
		return nil, err
	}

	stopCtx, stop := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:          cfg,
		reg:          registry.New(),
		values:       registry.NewValueStore(),
		dir:          dir,
		mgr:          mgr,
		obs:          obs,
		now:          time.Now,
		configSignal: make(chan struct{}, 1),
		stopCtx:      stopCtx,
		stop:         stop,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Start launches the configuration worker and the value loop. The value loop
// begins ticking once the broker connection is first established.
func (g *Gateway) Start() error {
	if g.closed.Load() {
		return ErrClosed
	}
	if !g.started.CompareAndSwap(false, true) {
		return nil
	}
	g.wg.Add(2)
	go g.configLoop()
	go g.valueLoop()
	g.obs.LogInfo("gateway_started",
		ports.Field{Key: "serial_number", Value: g.cfg.SerialNumber},
		ports.Field{Key: "publish_interval", Value: g.cfg.PublishInterval.String()},
	)
	return nil
}

// HandleEvent absorbs one tag-source event. It is safe for concurrent use.
// Rejected definitions leave the registry untouched.
func (g *Gateway) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventTagDefinition:
		return g.ingestDefinition(ctx, ev.Definition)
	case domain.EventTagValue:
		if ev.Value.ID == "" {
			return g.reject("value_rejected", fmt.Errorf("%w: empty tag id", ErrInvalidEvent))
		}
		// Every stored value ends up in one TagValues document, so a value that
		// cannot be encoded would fail every later publish.
		if _, err := json.Marshal(ev.Value.Value); err != nil {
			return g.reject("value_rejected", fmt.Errorf("%w: tag %q: %w", ErrInvalidEvent, ev.Value.ID, err))
		}
		g.values.Set(ev.Value.ID, ev.Value.Value)
		g.obs.IncCounter("aegis_values_ingested_total", 1)
		return nil
	default:
		return g.reject("event_rejected", fmt.Errorf("%w: kind %q", ErrInvalidEvent, ev.Kind))
	}
}

func (g *Gateway) ingestDefinition(ctx context.Context, def domain.TagDefinition) error {
	switch {
	case def.ID == "":
		return g.rejectDefinition(def, fmt.Errorf("%w: empty id", ErrInvalidDefinition))
	case def.DeviceID == "":
		return g.rejectDefinition(def, fmt.Errorf("%w: tag %q has no device", ErrInvalidDefinition, def.ID))
	case def.CollectionID == "":
		return g.rejectDefinition(def, fmt.Errorf("%w: tag %q has no collection", ErrInvalidDefinition, def.ID))
	}

	// resolve outside the registry lock; a racing event may resolve the same
	// node, and the registry keeps the first one
	var device *domain.Device
	if !g.reg.HasDevice(def.DeviceID) {
		d, err := g.dir.ResolveDevice(ctx, def.DeviceID)
		if err != nil {
			return g.rejectDefinition(def, fmt.Errorf("%w: device %q: %w", ErrUnresolvable, def.DeviceID, err))
		}
		device = &d
	}
	var collection *domain.Collection
	if !g.reg.HasCollection(def.CollectionID) {
		c, err := g.dir.ResolveCollection(ctx, def.CollectionID)
		if err != nil {
			return g.rejectDefinition(def, fmt.Errorf("%w: collection %q: %w", ErrUnresolvable, def.CollectionID, err))
		}
		c.DeviceNodeID = def.DeviceID
		collection = &c
	}

	res := g.reg.Ingest(def, device, collection)
	g.obs.IncCounter("aegis_definitions_ingested_total", 1)
	if res.NewDevice {
		g.deviceInfoPending.Store(true)
		g.obs.LogInfo("device_registered", ports.Field{Key: "device", Value: def.DeviceID})
	}
	g.signalConfig()
	return nil
}

func (g *Gateway) rejectDefinition(def domain.TagDefinition, err error) error {
	g.obs.IncCounter("aegis_definitions_rejected_total", 1)
	g.obs.LogError("definition_rejected", err,
		ports.Field{Key: "tag", Value: def.ID},
		ports.Field{Key: "device", Value: def.DeviceID},
		ports.Field{Key: "collection", Value: def.CollectionID},
	)
	return err
}

func (g *Gateway) reject(msg string, err error) error {
	g.obs.LogError(msg, err)
	return err
}

func (g *Gateway) signalConfig() {
	select {
	case g.configSignal <- struct{}{}:
	default:
	}
}

func (g *Gateway) configLoop() {
	defer g.wg.Done()
	for {
		select {
		case <-g.stopCtx.Done():
			return
		case <-g.configSignal:
			includeInfo := g.deviceInfoPending.Swap(false)
			if err := g.PublishConfiguration(g.stopCtx, includeInfo); err != nil {
				if includeInfo {
					g.deviceInfoPending.Store(true)
				}
				g.configDirty.Store(true)
			}
		}
	}
}

func (g *Gateway) valueLoop() {
	defer g.wg.Done()
	if !g.awaitConnection() {
		return
	}
	g.retryConfig()

	ticker := time.NewTicker(g.cfg.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopCtx.Done():
			return
		case <-ticker.C:
			_ = g.PublishValues(g.stopCtx, g.now())
			g.retryConfig()
		}
	}
}

// retryConfig re-signals the configuration worker after a failed publish.
func (g *Gateway) retryConfig() {
	if g.configDirty.Swap(false) {
		g.signalConfig()
	}
}

func (g *Gateway) awaitConnection() bool {
	for {
		_, err := g.mgr.Connection(g.stopCtx)
		if err == nil {
			return true
		}
		if g.stopCtx.Err() != nil || errors.Is(err, broker.ErrManagerClosed) {
			return false
		}
		select {
		case <-g.stopCtx.Done():
			return false
		case <-time.After(g.cfg.RetryInterval):
		}
	}
}

// PublishConfiguration publishes the tag configuration and, when
// includeDeviceInfo is set, the device info document. Both are built from the
// registry as it is now.
func (g *Gateway) PublishConfiguration(ctx context.Context, includeDeviceInfo bool) error {
	snap := g.reg.Snapshot()
	var errs []error
	if includeDeviceInfo {
		errs = append(errs, g.publish(ctx, domain.TopicDeviceInfo, builder.DeviceInfo(snap)))
	}
	errs = append(errs, g.publish(ctx, domain.TopicTagConfiguration, builder.TagConfiguration(snap)))
	return errors.Join(errs...)
}

// PublishValues publishes one value snapshot stamped with ts.
func (g *Gateway) PublishValues(ctx context.Context, ts time.Time) error {
	doc := builder.TagValues(g.reg.Snapshot(), g.values, ts)
	return g.publish(ctx, domain.TopicTagValues, doc)
}

// publish waits for the connection under ctx and sends the payload on a
// context detached from it, so stopping the loops does not cut a publish
// short. The document is forwarded downstream whatever the broker outcome.
func (g *Gateway) publish(ctx context.Context, suffix string, doc any) error {
	topic := domain.Topic(g.cfg.SerialNumber, suffix)
	topicField := ports.Field{Key: "topic", Value: topic}

	payload, err := json.Marshal(doc)
	if err != nil {
		g.obs.IncCounter("aegis_publish_errors_total", 1)
		g.obs.LogError("publish_encode_failed", err, topicField)
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	start := time.Now()
	err = g.send(ctx, topic, payload)
	if err != nil {
		g.obs.IncCounter("aegis_publish_errors_total", 1)
		g.obs.LogError("publish_failed", err, topicField)
	} else {
		g.obs.IncCounter("aegis_publish_total", 1)
		g.obs.ObserveLatency("aegis_publish_latency_seconds", time.Since(start).Seconds())
	}

	if g.fwd != nil {
		msg := domain.Message{Topic: topic, Payload: doc, Published: g.now()}
		if !g.fwd.Forward(msg) {
			g.obs.LogError("forward_dropped", fmt.Errorf("downstream rejected %s", topic), topicField)
		}
	}
	return err
}

func (g *Gateway) send(ctx context.Context, topic string, payload []byte) error {
	conn, err := g.mgr.Connection(ctx)
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.PublishTimeout)
	defer cancel()
	return conn.Publish(pubCtx, topic, payload)
}

// Stats is a point-in-time view used for gauges and the CLI.
type Stats struct {
	Devices     int
	Collections int
	Tags        int
	Values      int
	Broker      ports.ConnectionState
}

func (g *Gateway) Stats() Stats {
	d, c, t := g.reg.Counts()
	return Stats{
		Devices:     d,
		Collections: c,
		Tags:        t,
		Values:      g.values.Len(),
		Broker:      g.mgr.State(),
	}
}

// Snapshot exposes a copy of the registry contents.
func (g *Gateway) Snapshot() registry.Snapshot {
	return g.reg.Snapshot()
}

// Value returns the latest value stored for a tag id.
func (g *Gateway) Value(id string) (any, bool) {
	return g.values.Get(id)
}

// Device returns the device recorded for id, as resolved on first sight.
func (g *Gateway) Device(id string) (domain.Device, bool) {
	return g.reg.Device(id)
}

func (g *Gateway) Collection(id string) (domain.Collection, bool) {
	return g.reg.Collection(id)
}

// TagDefinition returns the latest definition stored for a tag id.
func (g *Gateway) TagDefinition(id string) (domain.TagDefinition, bool) {
	return g.reg.TagDefinition(id)
}

// Close stops both loops, waits for in-flight publishes until ctx ends, then
// closes the broker connection. Later calls return the first result.
func (g *Gateway) Close(ctx context.Context) error {
	g.closeMu.Lock()
	defer g.closeMu.Unlock()
	if !g.closed.CompareAndSwap(false, true) {
		return g.closeErr
	}

	g.stop()

	var errs []error
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for publishers: %w", ctx.Err()))
	}

	if err := g.mgr.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close broker: %w", err))
	}
	g.closeErr = errors.Join(errs...)
	g.obs.LogInfo("gateway_closed")
	return g.closeErr
}
